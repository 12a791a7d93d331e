package bm

import "fmt"

// MemberRoutingKey is group.<id>.member.<event>.
func MemberRoutingKey(groupID, event string) string {
	return fmt.Sprintf("group.%s.member.%s", groupID, event)
}

func ChatRoutingKey(groupID string) string {
	return fmt.Sprintf("group.%s.chat", groupID)
}

func EndedRoutingKey(groupID string) string {
	return fmt.Sprintf("group.%s.ended", groupID)
}
