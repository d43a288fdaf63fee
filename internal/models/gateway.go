package models

import "time"

// Gateway is a remote message gateway. Alive is the last observed
// reachability and only changes on a transition.
type Gateway struct {
	Name           string
	URL            string
	Alive          bool
	AliveChangedAt *time.Time
}

// Mailbox is a set of gateway credentials owning a group of mobiles
type Mailbox struct {
	AccessID    string
	Password    string
	GatewayName string
	Description string
	Enabled     bool
}
