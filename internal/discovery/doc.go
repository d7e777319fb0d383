// Package discovery listens for printer presence announcements on the
// local network.
//
// Printers broadcast SSDP-style NOTIFY datagrams on UDP port 2021. The
// listener parses the header block of each datagram (USN carries the
// serial, Location the IP address, plus vendor headers for the device
// name and model) and maintains a TTL-bounded cache of recently seen
// printers. The cache backs the REST discovery endpoint so a printer
// can be registered without typing its serial or address by hand.
package discovery
