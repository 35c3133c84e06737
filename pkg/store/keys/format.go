package keys

const (
	// notation dictionary for key formats:
	// l   = ledger point
	// idx = index
	// c   = community
	// lc  = last created at
	// segments are separated by ":"

	// ledger points, ordered by community, room, time
	EntryKey        = "l:%s:%s:%s:%s" // l:<community>:<room>:<ts>:<author>
	CommunityPrefix = "l:%s:"         // l:<community>:
	RoomPrefix      = "l:%s:%s:"      // l:<community>:<room>:
	RoomTSPrefix    = "l:%s:%s:%s:"   // l:<community>:<room>:<ts>:

	// community → newest stored point
	CommunityLC = "idx:c:%s:lc" // idx:c:<community>:lc

	TSPadWidth = 20

	ValidValue   = "1"
	InvalidValue = "0"
)
