package models

// Category identifies a kind of persisted record. The set is closed: each
// value carries the table it lives in, the tag stored alongside it and the
// columns forming its natural key.
type Category int

const (
	CategoryGateway Category = iota + 1
	CategoryMailbox
	CategoryMobile
	CategoryOriginated
	CategoryTerminated
	CategoryAPICallLog
)

type categoryInfo struct {
	name  string
	table string
	tag   string
	keys  []string
}

var categories = map[Category]categoryInfo{
	CategoryGateway:    {name: "gateway", table: "message_gateways", tag: "GW", keys: []string{"name"}},
	CategoryMailbox:    {name: "mailbox", table: "mailboxes", tag: "MB", keys: []string{"access_id"}},
	CategoryMobile:     {name: "mobile", table: "mobiles", tag: "MOB", keys: []string{"mobile_id"}},
	CategoryOriginated: {name: "originated", table: "raw_messages", tag: "MO", keys: []string{"category", "message_id"}},
	CategoryTerminated: {name: "terminated", table: "raw_messages", tag: "MT", keys: []string{"category", "message_id"}},
	CategoryAPICallLog: {name: "api_call_log", table: "api_call_logs", tag: "LOG", keys: []string{"id"}},
}

// Valid reports whether c is one of the declared categories
func (c Category) Valid() bool {
	_, ok := categories[c]
	return ok
}

func (c Category) String() string {
	if info, ok := categories[c]; ok {
		return info.name
	}
	return "unknown"
}

// Table is the table holding records of this category
func (c Category) Table() string {
	return categories[c].table
}

// Tag is the discriminator written to raw_messages.category
func (c Category) Tag() string {
	return categories[c].tag
}

// KeyColumns returns the natural key columns
func (c Category) KeyColumns() []string {
	keys := categories[c].keys
	out := make([]string, len(keys))
	copy(out, keys)
	return out
}

// CategoryFromTag maps a stored discriminator back to its category
func CategoryFromTag(tag string) (Category, bool) {
	for c, info := range categories {
		if info.tag == tag {
			return c, true
		}
	}
	return 0, false
}
