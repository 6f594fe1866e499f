// Package broker routes protocol elements between clients and drivers.
//
// A Broker owns every registry: connected clients with their declared
// interests and BLOB modes, local and remote drivers with the devices they
// serve and the properties they snoop, and the list of drivers waiting to
// be relaunched. All of that state is touched only by the dispatcher
// goroutine started by Run. Connection readers decode elements and post
// them to the dispatcher; per-endpoint writers drain message queues.
//
// Routing rules, in brief:
//
//   - Client elements go to the drivers serving their device. set* elements
//     also go to snooping drivers and new* elements are echoed to other
//     interested clients.
//   - Driver elements go to interested clients and snooping drivers. A
//     driver getProperties registers a snoop and is forwarded to chained
//     servers and to the drivers serving the requested device.
//   - enableBLOB from a client sets its BLOB mode and is forwarded to
//     remote drivers only; from a driver it sets the mode of a snoop.
//
// A client whose queue grows beyond Config.MaxQueueBytes is disconnected
// on the next element routed to it. Stream-format BLOB frames are dropped
// for a client once its queue exceeds Config.MaxStreamBytes.
//
// A driver whose transport fails is torn down and relaunched after
// Config.RestartDelay, up to Config.MaxRestarts times. When the last
// driver is retired and no control channel is configured, Run returns
// ErrNothingToServe.
package broker
