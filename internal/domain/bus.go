package domain

// MessageBus routes events from channels to the dispatcher and lets the
// dispatcher find the responder for the channel an event came from.
type MessageBus interface {
	Publish(ev InboundEvent)
	Subscribe() <-chan InboundEvent
	Attach(channelName string, r Responder)
	Responder(channelName string) (Responder, bool)
	Close()
}
