package zcl

import "fmt"

// Access flags
const (
	AccessRead   uint8 = 0x01
	AccessWrite  uint8 = 0x02
	AccessReport uint8 = 0x04
)

// AttrKey identifies an attribute across vendors. Manufacturer is 0 for
// attributes defined by the ZCL itself.
type AttrKey struct {
	Manufacturer uint16 `json:"manufacturer"`
	Cluster      uint16 `json:"cluster"`
	Attr         uint16 `json:"attr"`
}

func (k AttrKey) String() string {
	if k.Manufacturer == 0 {
		return fmt.Sprintf("0x%04X/0x%04X", k.Cluster, k.Attr)
	}
	return fmt.Sprintf("0x%04X/0x%04X@0x%04X", k.Cluster, k.Attr, k.Manufacturer)
}

// AttributeDef defines a ZCL attribute.
type AttributeDef struct {
	ID           uint16 `json:"id"`
	Name         string `json:"name"`
	Type         uint8  `json:"type"`
	Access       uint8  `json:"access"` // bitmask: 1=read, 2=write, 4=reportable
	Manufacturer uint16 `json:"manufacturer,omitempty"`
}

// IsReadable returns true if the attribute can be read.
func (a *AttributeDef) IsReadable() bool {
	return a.Access&AccessRead != 0
}

// IsWritable returns true if the attribute can be written.
func (a *AttributeDef) IsWritable() bool {
	return a.Access&AccessWrite != 0
}

// IsReportable returns true if the attribute supports reporting.
func (a *AttributeDef) IsReportable() bool {
	return a.Access&AccessReport != 0
}

// CommandDef defines a cluster-specific command sent to the server side.
type CommandDef struct {
	ID   uint8  `json:"id"`
	Name string `json:"name"`
}

// ClusterDef defines a ZCL cluster with its attributes and commands.
type ClusterDef struct {
	ID         uint16         `json:"id"`
	Name       string         `json:"name"`
	Attributes []AttributeDef `json:"attributes,omitempty"`
	Commands   []CommandDef   `json:"commands,omitempty"`
}

// FindAttribute looks up an attribute by manufacturer code and ID.
func (c *ClusterDef) FindAttribute(manufacturer, id uint16) *AttributeDef {
	for i := range c.Attributes {
		if c.Attributes[i].ID == id && c.Attributes[i].Manufacturer == manufacturer {
			return &c.Attributes[i]
		}
	}
	return nil
}

// FindCommand looks up a command by ID.
func (c *ClusterDef) FindCommand(id uint8) *CommandDef {
	for i := range c.Commands {
		if c.Commands[i].ID == id {
			return &c.Commands[i]
		}
	}
	return nil
}

// DeepCopy returns a deep copy of the cluster definition.
func (c *ClusterDef) DeepCopy() *ClusterDef {
	cp := *c
	if c.Attributes != nil {
		cp.Attributes = make([]AttributeDef, len(c.Attributes))
		copy(cp.Attributes, c.Attributes)
	}
	if c.Commands != nil {
		cp.Commands = make([]CommandDef, len(c.Commands))
		copy(cp.Commands, c.Commands)
	}
	return &cp
}

// merge adds attributes and commands from an overlay definition. An attribute
// whose key already exists must match the existing name and type.
func (c *ClusterDef) merge(other *ClusterDef) error {
	for _, attr := range other.Attributes {
		existing := c.FindAttribute(attr.Manufacturer, attr.ID)
		if existing == nil {
			c.Attributes = append(c.Attributes, attr)
			continue
		}
		if existing.Name != attr.Name || existing.Type != attr.Type {
			key := AttrKey{Manufacturer: attr.Manufacturer, Cluster: c.ID, Attr: attr.ID}
			return fmt.Errorf("attribute %s already defined as %q (%s), refusing %q (%s)",
				key, existing.Name, TypeName(existing.Type), attr.Name, TypeName(attr.Type))
		}
	}
	for _, cmd := range other.Commands {
		if c.FindCommand(cmd.ID) == nil {
			c.Commands = append(c.Commands, cmd)
		}
	}
	return nil
}
