// Package inventory persists the filament spool catalogue, the known
// printers, and the per-spool usage history.
//
// Spools carry physical attributes (material, colour, weights) plus the
// RFID tag id and slicer filament preset used to push the spool's
// identity into an AMS slot. Printers are keyed by serial and hold the
// LAN credentials the fleet needs to open a session.
//
// All persistence goes through the Repository interfaces so handlers and
// services can be tested against in-memory fakes. The SQLite
// implementations are the only ones shipped.
package inventory
