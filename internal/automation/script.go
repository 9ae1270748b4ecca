//go:build !no_automation

package automation

// ScriptMeta holds user-editable metadata for a script. It is stored as a
// JSON comment on the first line of the file.
type ScriptMeta struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
	// Light is the light targeted when a call names none.
	Light string `json:"light,omitempty"`
}

// Script represents a single automation script stored on disk.
type Script struct {
	ID       string     `json:"id"` // filename stem (no .lua)
	Meta     ScriptMeta `json:"meta"`
	LuaCode  string     `json:"lua_code"`
	FilePath string     `json:"-"`
}
