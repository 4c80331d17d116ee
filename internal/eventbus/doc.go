// Package eventbus carries chat events between instances.
//
// A Publisher wraps an event in a domain.Envelope and publishes it on the
// event type's topic. Every instance runs one Listener subscribed to all
// topics, which decodes received envelopes and hands them to the local
// Deliverer. An instance receives its own events the same way as every
// other instance does, so local and remote clients see one delivery path.
package eventbus
