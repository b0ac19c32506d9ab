package reply

import "strings"

// SilentReplyToken is what the model answers when a message needs no reply.
const SilentReplyToken = "NO_REPLY"

// isSilentReply reports whether text starts or ends with the silent token
// as a whole word.
func isSilentReply(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < len(SilentReplyToken) {
		return false
	}
	if strings.HasPrefix(trimmed, SilentReplyToken) {
		rest := trimmed[len(SilentReplyToken):]
		if rest == "" || !isWordByte(rest[0]) {
			return true
		}
	}
	if strings.HasSuffix(trimmed, SilentReplyToken) {
		head := trimmed[:len(trimmed)-len(SilentReplyToken)]
		if head == "" || !isWordByte(head[len(head)-1]) {
			return true
		}
	}
	return false
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
