package schema

// Packet type numbers for the initial seed set. The negotiation
// types are pinned: they never decode under anything but
// header_mode = NEGOTIATION, and they are fixed by the wire protocol,
// not chosen here.
const (
	PacketProcessingStarted  uint16 = 0
	PacketProcessingFinished uint16 = 1
	PacketServerJoinReq      uint16 = 4
	PacketServerJoinReply    uint16 = 5

	PacketServerInfo uint16 = 6
	PacketGameInfo   uint16 = 8

	// PacketChatMsg's number matches the worked chat-message examples'
	// cache key "(29, ())" verbatim, so those examples are exact
	// fixtures against this registry rather than a renumbered analog.
	PacketChatMsg uint16 = 29

	// PacketTileInfo and PacketPlayerInfo round out the array-diff
	// coverage, exercising 2-byte and 1-byte array-diff indices
	// respectively against a non-empty cache key.
	PacketTileInfo   uint16 = 30
	PacketPlayerInfo uint16 = 31
)

// Seed registers the initial packet schemas: the four
// negotiation packets, server-info, chat-msg, the array-diff carrier
// game-info, and the two supplemented tile/player packets.
func Seed(r *Registry) error {
	for _, s := range seedSchemas() {
		if err := r.Register(s); err != nil {
			return err
		}
	}
	return nil
}

func seedSchemas() []*PacketSchema {
	return []*PacketSchema{
		{
			PacketType: PacketProcessingStarted,
			HasDelta:   false,
			Fields:     nil,
		},
		{
			PacketType: PacketProcessingFinished,
			HasDelta:   false,
			Fields:     nil,
		},
		{
			PacketType: PacketServerJoinReq,
			HasDelta:   false,
			Fields: []FieldSchema{
				{Name: "username", Kind: STRING},
				{Name: "version_label", Kind: STRING},
			},
		},
		{
			PacketType: PacketServerJoinReply,
			HasDelta:   false,
			Fields: []FieldSchema{
				{Name: "accepted", Kind: BOOL},
				{Name: "message", Kind: STRING},
				{Name: "conn_id", Kind: U16},
			},
		},
		{
			PacketType: PacketServerInfo,
			HasDelta:   true,
			Fields: []FieldSchema{
				{Name: "patch_version", Kind: STRING},
				{Name: "turn", Kind: S16},
			},
		},
		{
			// Matches the worked chat-message examples exactly: six
			// non-key fields, bitvector_bit_count = 6, bitvector_byte_count = 1.
			PacketType: PacketChatMsg,
			HasDelta:   true,
			Fields: []FieldSchema{
				{Name: "message", Kind: STRING},
				{Name: "tile", Kind: S32},
				{Name: "event", Kind: S16},
				{Name: "turn", Kind: S16},
				{Name: "phase", Kind: S16},
				{Name: "conn_id", Kind: S16},
			},
		},
		{
			PacketType: PacketGameInfo,
			HasDelta:   true,
			Fields: []FieldSchema{
				{Name: "turn", Kind: S32},
				{Name: "year", Kind: S32},
				{Name: "nations_in_play", Kind: ARRAY, ElementKind: BOOL, Capacity: 50, UseDiff: true},
			},
		},
		{
			// 2-byte array-diff indices: capacity 401 > 255.
			PacketType: PacketTileInfo,
			HasDelta:   true,
			Fields: []FieldSchema{
				{Name: "tile", Kind: U32, IsKey: true},
				{Name: "terrain", Kind: U8},
				{Name: "owner", Kind: S16},
				{Name: "extras", Kind: ARRAY, ElementKind: BOOL, Capacity: 401, UseDiff: true},
			},
		},
		{
			// 1-byte array-diff indices alongside boolean header
			// folding in the same packet.
			PacketType: PacketPlayerInfo,
			HasDelta:   true,
			Fields: []FieldSchema{
				{Name: "player_id", Kind: U8, IsKey: true},
				{Name: "name", Kind: STRING},
				{Name: "score", Kind: S32},
				{Name: "is_alive", Kind: BOOL},
				{Name: "techs", Kind: ARRAY, ElementKind: BOOL, Capacity: 88, UseDiff: true},
			},
		},
	}
}
