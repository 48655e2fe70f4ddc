// Package protocol implements the SQ100 / GH-625 serial wire format: request
// and reply framing, the XOR checksum, and the fixed binary record layouts
// carried inside reply parameters.
package protocol

// Request frames start with this marker. Replies do not.
const StartMarker byte = 0x02

// Command bytes.
const (
	CmdListTracks     byte = 0x78 // reply: N x 29-byte track list records
	CmdDownloadTracks byte = 0x80 // param: be16 count + count x be16 memory index
	CmdNextSegment    byte = 0x81 // reply: one download segment
	CmdEndOfStream    byte = 0x8A // reply command closing a download
	CmdWhoAmI         byte = 0xBF // reply: ASCII product and model
)

// Segment type tags, found at HeaderTagOffset of a download reply.
const (
	TagTrackInfo   byte = 0x00
	TagLapInfo     byte = 0xAA
	TagTrackPoints byte = 0x55
)

// Record sizes in bytes.
const (
	HeaderSize     = 29
	TrackInfoSize  = 29 // info block following the header
	LapSize        = 41
	TrackPointSize = 25

	HeaderTagOffset = 28

	// ReplyHeaderSize is what a reader needs before it knows the length of
	// the rest of a reply: command + be16 parameter length.
	ReplyHeaderSize = 3

	// MaxParameter is the largest request parameter, as the length field
	// also counts the command byte.
	MaxParameter = 0xFFFF - 1
)
