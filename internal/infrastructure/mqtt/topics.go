package mqtt

import "fmt"

// TopicPrefix is the root of every topic the hub publishes or reads.
const TopicPrefix = "indihub"

// Topics provides builders for the hub's MQTT topics.
//
//	topic := mqtt.Topics{}.Event(events.DriverStarted)
//	// Returns: "indihub/events/driver.started"
type Topics struct{}

// Status is the retained online/offline topic, also used for the Last Will.
//
// Example: indihub/status
func (Topics) Status() string {
	return TopicPrefix + "/status"
}

// Event returns the topic for one event kind.
//
// Example: indihub/events/driver.restart_scheduled
func (Topics) Event(kind string) string {
	return fmt.Sprintf("%s/events/%s", TopicPrefix, kind)
}

// Stats is the retained topic carrying the latest broker snapshot totals.
//
// Example: indihub/stats
func (Topics) Stats() string {
	return TopicPrefix + "/stats"
}

// Control carries start/stop command lines in the control channel syntax.
//
// Example: indihub/control
func (Topics) Control() string {
	return TopicPrefix + "/control"
}

// AllEvents matches every event topic.
//
// Pattern: indihub/events/+
func (Topics) AllEvents() string {
	return TopicPrefix + "/events/+"
}

// AllTopics matches everything under the prefix.
//
// Pattern: indihub/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
