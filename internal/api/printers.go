package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/spooldock/spooldock-core/internal/inventory"
	"github.com/spooldock/spooldock-core/internal/printer"
)

// printerResponse pairs the stored registration with live connectivity.
type printerResponse struct {
	inventory.Printer
	Connected bool `json:"connected"`
}

// handleListPrinters returns all registered printers with connectivity.
func (s *Server) handleListPrinters(w http.ResponseWriter, r *http.Request) {
	printers, err := s.printers.List(r.Context())
	if err != nil {
		s.logger.Error("listing printers failed", "error", err)
		writeInternalError(w, "failed to list printers")
		return
	}

	out := make([]printerResponse, 0, len(printers))
	for _, p := range printers {
		out = append(out, printerResponse{
			Printer:   p,
			Connected: s.fleet.IsConnected(p.Serial),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCreatePrinter registers a printer and optionally connects it.
func (s *Server) handleCreatePrinter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		inventory.Printer
		AccessCode string `json:"access_code"`
		Connect    bool   `json:"connect"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Serial == "" || req.IPAddress == "" {
		writeBadRequest(w, "serial and ip_address are required")
		return
	}
	req.Printer.AccessCode = req.AccessCode

	if err := s.printers.Create(r.Context(), &req.Printer); err != nil {
		if errors.Is(err, inventory.ErrPrinterExists) {
			writeConflict(w, "printer already registered")
			return
		}
		s.logger.Error("creating printer failed", "error", err)
		writeInternalError(w, "failed to register printer")
		return
	}

	if req.Connect {
		if err := s.fleet.Connect(req.Serial, req.IPAddress, req.AccessCode, req.Name); err != nil {
			s.logger.Warn("connect after registration failed", "serial", req.Serial, "error", err)
		}
	}

	writeJSON(w, http.StatusCreated, printerResponse{
		Printer:   req.Printer,
		Connected: s.fleet.IsConnected(req.Serial),
	})
}

// handleGetPrinter returns one registered printer.
func (s *Server) handleGetPrinter(w http.ResponseWriter, r *http.Request) {
	p, err := s.printers.GetBySerial(r.Context(), chi.URLParam(r, "serial"))
	if err != nil {
		if errors.Is(err, inventory.ErrPrinterNotFound) {
			writeNotFound(w, "printer not found")
			return
		}
		s.logger.Error("getting printer failed", "error", err)
		writeInternalError(w, "failed to get printer")
		return
	}
	writeJSON(w, http.StatusOK, printerResponse{
		Printer:   *p,
		Connected: s.fleet.IsConnected(p.Serial),
	})
}

// handleUpdatePrinter applies a partial update to a registration.
func (s *Server) handleUpdatePrinter(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")
	p, err := s.printers.GetBySerial(r.Context(), serial)
	if err != nil {
		if errors.Is(err, inventory.ErrPrinterNotFound) {
			writeNotFound(w, "printer not found")
			return
		}
		s.logger.Error("getting printer failed", "error", err)
		writeInternalError(w, "failed to get printer")
		return
	}

	var req struct {
		Name        *string `json:"name"`
		Model       *string `json:"model"`
		IPAddress   *string `json:"ip_address"`
		AccessCode  *string `json:"access_code"`
		AutoConnect *bool   `json:"auto_connect"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Model != nil {
		p.Model = *req.Model
	}
	if req.IPAddress != nil {
		p.IPAddress = *req.IPAddress
	}
	if req.AccessCode != nil {
		p.AccessCode = *req.AccessCode
	}
	if req.AutoConnect != nil {
		p.AutoConnect = *req.AutoConnect
	}

	if err := s.printers.Update(r.Context(), p); err != nil {
		s.logger.Error("updating printer failed", "error", err)
		writeInternalError(w, "failed to update printer")
		return
	}
	writeJSON(w, http.StatusOK, printerResponse{
		Printer:   *p,
		Connected: s.fleet.IsConnected(serial),
	})
}

// handleDeletePrinter disconnects and deregisters a printer.
func (s *Server) handleDeletePrinter(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")
	s.fleet.Disconnect(serial)

	if err := s.printers.Delete(r.Context(), serial); err != nil {
		if errors.Is(err, inventory.ErrPrinterNotFound) {
			writeNotFound(w, "printer not found")
			return
		}
		s.logger.Error("deleting printer failed", "error", err)
		writeInternalError(w, "failed to delete printer")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleConnectPrinter opens the device session for a registered printer.
func (s *Server) handleConnectPrinter(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")
	p, err := s.printers.GetBySerial(r.Context(), serial)
	if err != nil {
		if errors.Is(err, inventory.ErrPrinterNotFound) {
			writeNotFound(w, "printer not found")
			return
		}
		s.logger.Error("getting printer failed", "error", err)
		writeInternalError(w, "failed to get printer")
		return
	}

	if err := s.fleet.Connect(p.Serial, p.IPAddress, p.AccessCode, p.Name); err != nil {
		writeError(w, http.StatusBadGateway, ErrCodeInternal, "printer connection failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"serial":    serial,
		"connected": s.fleet.IsConnected(serial),
	})
}

// handleDisconnectPrinter tears down the device session.
func (s *Server) handleDisconnectPrinter(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")
	s.fleet.Disconnect(serial)
	writeJSON(w, http.StatusOK, map[string]any{
		"serial":    serial,
		"connected": false,
	})
}

// handlePrinterStatuses returns connectivity for every managed printer.
func (s *Server) handlePrinterStatuses(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.fleet.ConnectionStatuses())
}

// handleGetPrinterState returns the live decoded state snapshot.
func (s *Server) handleGetPrinterState(w http.ResponseWriter, r *http.Request) {
	state := s.fleet.GetState(chi.URLParam(r, "serial"))
	if state == nil {
		writeNotFound(w, "printer not connected")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleGetCalibrations returns the printer's cached calibration profiles.
func (s *Server) handleGetCalibrations(w http.ResponseWriter, r *http.Request) {
	cals, err := s.fleet.Calibrations(chi.URLParam(r, "serial"))
	if err != nil {
		writeNotFound(w, "printer not connected")
		return
	}
	if cals == nil {
		cals = []printer.CalibrationProfile{}
	}
	writeJSON(w, http.StatusOK, cals)
}

// slotParams parses the {amsID}/{trayID} URL segments.
func slotParams(r *http.Request) (amsID, trayID int, err error) {
	amsID, err = strconv.Atoi(chi.URLParam(r, "amsID"))
	if err != nil {
		return 0, 0, err
	}
	trayID, err = strconv.Atoi(chi.URLParam(r, "trayID"))
	if err != nil {
		return 0, 0, err
	}
	return amsID, trayID, nil
}

// connectionFor resolves the live connection for a serial, writing a 404
// when the fleet does not manage it.
func (s *Server) connectionFor(w http.ResponseWriter, r *http.Request) (*printer.Connection, bool) {
	conn, ok := s.fleet.Get(chi.URLParam(r, "serial"))
	if !ok {
		writeNotFound(w, "printer not connected")
		return nil, false
	}
	return conn, true
}

// handleSetFilament writes a slot's filament identity immediately.
func (s *Server) handleSetFilament(w http.ResponseWriter, r *http.Request) {
	conn, ok := s.connectionFor(w, r)
	if !ok {
		return
	}
	amsID, trayID, err := slotParams(r)
	if err != nil {
		writeBadRequest(w, "slot ids must be integers")
		return
	}

	var req struct {
		TrayInfoIdx   string `json:"tray_info_idx"`
		TrayType      string `json:"tray_type"`
		TrayColor     string `json:"tray_color"`
		NozzleTempMin int    `json:"nozzle_temp_min"`
		NozzleTempMax int    `json:"nozzle_temp_max"`
		SettingID     string `json:"setting_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	accepted := conn.SetFilament(amsID, trayID, printer.FilamentSetting{
		TrayInfoIdx:   req.TrayInfoIdx,
		TrayType:      req.TrayType,
		TrayColor:     req.TrayColor,
		NozzleTempMin: req.NozzleTempMin,
		NozzleTempMax: req.NozzleTempMax,
		SettingID:     req.SettingID,
	})
	writeCommandResult(w, accepted)
}

// handleSetCalibration binds a stored calibration profile to a slot.
func (s *Server) handleSetCalibration(w http.ResponseWriter, r *http.Request) {
	conn, ok := s.connectionFor(w, r)
	if !ok {
		return
	}
	amsID, trayID, err := slotParams(r)
	if err != nil {
		writeBadRequest(w, "slot ids must be integers")
		return
	}

	var req struct {
		CalIdx         int    `json:"cali_idx"`
		FilamentID     string `json:"filament_id"`
		NozzleDiameter string `json:"nozzle_diameter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	writeCommandResult(w, conn.SetCalibration(amsID, trayID, req.CalIdx, req.FilamentID, req.NozzleDiameter))
}

// handleSetFlowCoefficient writes a slot's K value directly.
func (s *Server) handleSetFlowCoefficient(w http.ResponseWriter, r *http.Request) {
	conn, ok := s.connectionFor(w, r)
	if !ok {
		return
	}
	amsID, trayID, err := slotParams(r)
	if err != nil {
		writeBadRequest(w, "slot ids must be integers")
		return
	}

	var req struct {
		KValue float64 `json:"k_value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	writeCommandResult(w, conn.SetFlowCoefficient(amsID, trayID, req.KValue))
}

// handleResetSlot forces a re-read of a slot's embedded tag.
func (s *Server) handleResetSlot(w http.ResponseWriter, r *http.Request) {
	conn, ok := s.connectionFor(w, r)
	if !ok {
		return
	}
	amsID, trayID, err := slotParams(r)
	if err != nil {
		writeBadRequest(w, "slot ids must be integers")
		return
	}
	writeCommandResult(w, conn.ResetSlot(amsID, trayID))
}

// writeCommandResult reports whether the transport accepted a
// fire-and-forget command.
func writeCommandResult(w http.ResponseWriter, accepted bool) {
	if !accepted {
		writeError(w, http.StatusBadGateway, ErrCodeInternal, "printer did not accept the command")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}
