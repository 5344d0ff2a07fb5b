package daq

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"tailscale.com/tsweb"
)

// AttachAdminRoutes mounts handle status and, for command-capable devices,
// a raw command endpoint under /debug/.
func (h *Handle) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("daq", "DAQ handle status and lease", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			Settings Settings `json:"settings"`
			Status
		}{h.Settings(), h.Status()}); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	cmd, ok := h.src.(Commander)
	if !ok {
		return
	}
	debug.HandleSilentFunc("daq-command", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		h.readMu.Lock()
		err := cmd.SendCommand(command)
		h.readMu.Unlock()
		if err != nil {
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote command %q to DAQ device", command))
	})
}
