// Package protocol turns the broker's byte streams into discrete protocol
// elements and back.
//
// Peers speak a stream of XML elements with no enclosing document: each
// top-level element (getProperties, defNumberVector, setBLOBVector,
// enableBLOB, ...) is a complete message. The broker never interprets
// property values; it only reads the tag, the device and name attributes,
// enableBLOB content and the format of oneBLOB children.
package protocol
