// Package storage provides the optional delivery journal.
//
// It records one row per notification outcome (sent or dropped) so operators
// can audit what reached the chat. Relay state such as the watermark or the
// pending summary batch is deliberately not stored here.
package storage
