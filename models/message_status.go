package models

/************************************************
/**** MARK: MESSAGE STATUS ****/
/************************************************/
const MESSAGE_STATUS_PENDING = "pending"
const MESSAGE_STATUS_SENT = "sent"
const MESSAGE_STATUS_DELIVERED = "delivered"
const MESSAGE_STATUS_READ = "read"
const MESSAGE_STATUS_FAILED = "failed"

var statusRank = map[string]int{
	MESSAGE_STATUS_PENDING:   0,
	MESSAGE_STATUS_SENT:      1,
	MESSAGE_STATUS_DELIVERED: 2,
	MESSAGE_STATUS_READ:      3,
}

func IsMessageStatus(s string) bool {
	_, ok := statusRank[s]
	return ok || s == MESSAGE_STATUS_FAILED
}

// CanTransition enforces the delivery order pending|sent -> delivered -> read.
// failed is terminal and only reachable from pending or sent. Repeating the
// current status is not a transition.
func CanTransition(from, to string) bool {
	if from == MESSAGE_STATUS_FAILED || !IsMessageStatus(from) || !IsMessageStatus(to) {
		return false
	}
	if to == MESSAGE_STATUS_FAILED {
		return from == MESSAGE_STATUS_PENDING || from == MESSAGE_STATUS_SENT
	}
	return statusRank[to] > statusRank[from]
}
