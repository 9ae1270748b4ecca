package web

import (
	"encoding/json"
	"net/http"

	"zigbee-ledfx/internal/automation"
)

func (s *Server) handleAPIListScripts(w http.ResponseWriter, r *http.Request) {
	if s.scriptMgr == nil {
		s.writeJSON(w, http.StatusOK, []any{})
		return
	}
	scripts, err := s.scriptMgr.List()
	if err != nil {
		s.logger.Error("list scripts", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if scripts == nil {
		scripts = []*automation.Script{}
	}
	s.writeJSON(w, http.StatusOK, scripts)
}

func (s *Server) handleAPIGetScript(w http.ResponseWriter, r *http.Request) {
	if s.scriptMgr == nil {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	script, err := s.scriptMgr.Get(r.PathValue("id"))
	if err != nil || script == nil {
		s.writeError(w, http.StatusNotFound, "script not found")
		return
	}
	s.writeJSON(w, http.StatusOK, script)
}

type saveScriptRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Light       string `json:"light"`
	LuaCode     string `json:"lua_code"`
	Enabled     bool   `json:"enabled"`
}

func (req saveScriptRequest) apply(script *automation.Script) {
	script.Meta.Name = req.Name
	script.Meta.Description = req.Description
	script.Meta.Light = req.Light
	script.Meta.Enabled = req.Enabled
	script.LuaCode = req.LuaCode
}

func (s *Server) handleAPICreateScript(w http.ResponseWriter, r *http.Request) {
	if s.scriptMgr == nil {
		s.writeError(w, http.StatusInternalServerError, "automations not available")
		return
	}

	var req saveScriptRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	script := &automation.Script{}
	req.apply(script)
	saved, err := s.scriptMgr.Save(script)
	if err != nil {
		s.logger.Error("create script", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if s.autoEngine != nil && saved.Meta.Enabled {
		if err := s.autoEngine.ReloadScript(saved.ID); err != nil {
			s.logger.Error("reload script after create", "id", saved.ID, "err", err)
		}
	}
	s.writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleAPIUpdateScript(w http.ResponseWriter, r *http.Request) {
	if s.scriptMgr == nil {
		s.writeError(w, http.StatusInternalServerError, "automations not available")
		return
	}

	existing, err := s.scriptMgr.Get(r.PathValue("id"))
	if err != nil || existing == nil {
		s.writeError(w, http.StatusNotFound, "script not found")
		return
	}

	var req saveScriptRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		req.Name = existing.Meta.Name
	}
	req.apply(existing)

	saved, err := s.scriptMgr.Save(existing)
	if err != nil {
		s.logger.Error("update script", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if s.autoEngine != nil {
		if err := s.autoEngine.ReloadScript(saved.ID); err != nil {
			s.logger.Error("reload script after update", "id", saved.ID, "err", err)
		}
	}
	s.writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleAPIDeleteScript(w http.ResponseWriter, r *http.Request) {
	if s.scriptMgr == nil {
		s.writeError(w, http.StatusInternalServerError, "automations not available")
		return
	}

	id := r.PathValue("id")
	if s.autoEngine != nil {
		s.autoEngine.StopScript(id)
	}
	if err := s.scriptMgr.Delete(id); err != nil {
		s.logger.Error("delete script", "id", id, "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAPIRunScript runs a saved script once. The id "_inline" runs the
// lua_code of the request body instead.
func (s *Server) handleAPIRunScript(w http.ResponseWriter, r *http.Request) {
	if s.autoEngine == nil {
		s.writeError(w, http.StatusInternalServerError, "automation engine not available")
		return
	}

	id := r.PathValue("id")
	if id == "_inline" {
		var req struct {
			LuaCode string `json:"lua_code"`
		}
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		s.writeJSON(w, http.StatusOK, s.autoEngine.RunLuaCode(req.LuaCode))
		return
	}
	s.writeJSON(w, http.StatusOK, s.autoEngine.RunScript(id))
}

func (s *Server) handleAPIToggleScript(w http.ResponseWriter, r *http.Request) {
	if s.scriptMgr == nil {
		s.writeError(w, http.StatusInternalServerError, "automations not available")
		return
	}

	script, err := s.scriptMgr.Get(r.PathValue("id"))
	if err != nil || script == nil {
		s.writeError(w, http.StatusNotFound, "script not found")
		return
	}

	script.Meta.Enabled = !script.Meta.Enabled
	saved, err := s.scriptMgr.Save(script)
	if err != nil {
		s.logger.Error("toggle script", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if s.autoEngine != nil {
		if saved.Meta.Enabled {
			if err := s.autoEngine.ReloadScript(saved.ID); err != nil {
				s.logger.Error("reload script after toggle", "id", saved.ID, "err", err)
			}
		} else {
			s.autoEngine.StopScript(saved.ID)
		}
	}
	s.writeJSON(w, http.StatusOK, saved)
}
