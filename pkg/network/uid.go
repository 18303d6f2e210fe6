package network

import "github.com/rs/xid"

// Uid is a sortable unique id of a connection, mostly for logs.
type Uid string

func NewUid() Uid { return Uid(xid.New().String()) }

func (u Uid) String() string { return string(u) }

// Short keeps the head and the tail of the id.
func (u Uid) Short() string {
	if len(u) < 8 {
		return string(u)
	}
	return string(u)[:3] + "." + string(u)[len(u)-3:]
}
