// Package pgproto encodes frontend messages and decodes backend messages for
// the PostgreSQL v3 wire protocol. It operates on byte buffers only; it knows
// nothing about sockets, connection state, or retry policy.
package pgproto

// ProtocolVersion is the v3 protocol's StartupMessage version field (3 << 16).
const ProtocolVersion uint32 = 196608

// Frontend message tags. StartupMessage carries no tag.
const (
	TagPasswordMessage byte = 'p' // also SaslInitialResponse, SaslResponse
	TagQuery           byte = 'Q'
	TagParse           byte = 'P'
	TagBind            byte = 'B'
	TagDescribe        byte = 'D'
	TagExecute         byte = 'E'
	TagSync            byte = 'S'
	TagFlush           byte = 'H'
	TagTerminate       byte = 'X'
	TagClose           byte = 'C'
)

// Backend message tags.
const (
	TagAuthentication       byte = 'R'
	TagRowDescription       byte = 'T'
	TagDataRow              byte = 'D'
	TagCommandComplete      byte = 'C'
	TagEmptyQueryResponse   byte = 'I'
	TagParseComplete        byte = '1'
	TagBindComplete         byte = '2'
	TagCloseComplete        byte = '3'
	TagNoData               byte = 'n'
	TagPortalSuspended      byte = 's'
	TagReadyForQuery        byte = 'Z'
	TagParameterStatus      byte = 'S'
	TagBackendKeyData       byte = 'K'
	TagErrorResponse        byte = 'E'
	TagNoticeResponse       byte = 'N'
	TagParameterDescription byte = 't'
	TagNotificationResponse byte = 'A'
)

// backendTags is the set of tags for which a decoder consumes exactly
// 1 + length bytes from the buffer (the testable framing invariant).
var backendTags = map[byte]bool{
	TagAuthentication: true, TagRowDescription: true, TagDataRow: true,
	TagCommandComplete: true, TagReadyForQuery: true, TagErrorResponse: true,
	TagNoticeResponse: true, TagParameterStatus: true, TagBackendKeyData: true,
	TagParseComplete: true, TagBindComplete: true, TagCloseComplete: true,
	TagEmptyQueryResponse: true, TagNoData: true, TagPortalSuspended: true,
	TagParameterDescription: true, TagNotificationResponse: true,
}

// IsKnownBackendTag reports whether tag is one pgproto's decoder recognizes.
func IsKnownBackendTag(tag byte) bool { return backendTags[tag] }

// AuthType distinguishes AuthenticationRequest subtypes, all multiplexed
// under backend tag 'R' via a leading int32 code.
type AuthType int32

const (
	AuthOK                AuthType = 0
	AuthCleartextPassword AuthType = 3
	AuthMD5Password       AuthType = 5
	AuthSASL              AuthType = 10
	AuthSASLContinue      AuthType = 11
	AuthSASLFinal         AuthType = 12
)

// TransactionStatus is ReadyForQuery's single status byte.
type TransactionStatus byte

const (
	TxIdle       TransactionStatus = 'I'
	TxInTransaction TransactionStatus = 'T'
	TxFailed     TransactionStatus = 'E'
)
