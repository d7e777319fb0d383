package api

import "net/http"

// handleDiscovery returns printers recently seen announcing on the LAN.
// Registered printers appear here too; the dashboard filters them out.
func (s *Server) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	if s.discovery == nil {
		writeJSON(w, http.StatusOK, []DiscoveredPrinter{})
		return
	}
	found := s.discovery.Discovered()
	if found == nil {
		found = []DiscoveredPrinter{}
	}
	writeJSON(w, http.StatusOK, found)
}
