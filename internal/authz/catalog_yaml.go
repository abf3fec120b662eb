package authz

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type catalogFile struct {
	Roles []struct {
		ID              string   `yaml:"id"`
		Name            string   `yaml:"name"`
		Description     string   `yaml:"description"`
		Category        string   `yaml:"category"`
		Permissions     []string `yaml:"permissions"`
		CanBeAssignedBy []string `yaml:"can_be_assigned_by"`
	} `yaml:"roles"`
}

// DecodeCatalog reads a YAML role table and validates it with NewCatalog.
func DecodeCatalog(r io.Reader) (*Catalog, error) {
	var file catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: decode yaml: %v", ErrInvalidCatalog, err)
	}
	roles := make([]Role, 0, len(file.Roles))
	for _, fr := range file.Roles {
		role := Role{
			ID:              RoleID(fr.ID),
			Name:            fr.Name,
			Description:     fr.Description,
			Category:        Category(fr.Category),
			Permissions:     NewPermissionSet(),
			CanBeAssignedBy: NewRoleSet(),
		}
		for _, p := range fr.Permissions {
			role.Permissions[Permission(p)] = struct{}{}
		}
		for _, g := range fr.CanBeAssignedBy {
			role.CanBeAssignedBy[RoleID(g)] = struct{}{}
		}
		roles = append(roles, role)
	}
	return NewCatalog(roles...)
}

// LoadCatalog reads the catalog from path; an empty path yields DefaultCatalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return DecodeCatalog(f)
}
