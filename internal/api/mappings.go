package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/felixgeelhaar/tirecode/internal/errors"
)

const mappingRoute = MappingsPath + "/{id}"

// Mapping links a public tire code to a size.
type Mapping struct {
	ID             string `json:"id" yaml:"id"`
	CodePublic     string `json:"codePublic" yaml:"codePublic"`
	SizeRaw        string `json:"sizeRaw" yaml:"sizeRaw"`
	SizeNormalized string `json:"sizeNormalized" yaml:"sizeNormalized"`
}

// CreateMappingRequest creates a mapping. The server normalizes SizeRaw.
type CreateMappingRequest struct {
	SizeRaw    string `json:"sizeRaw" validate:"required,max=32"`
	LoadIndex  *int   `json:"loadIndex,omitempty" validate:"omitempty,gte=1,lte=999"`
	SpeedIndex string `json:"speedIndex,omitempty" validate:"omitempty,speedindex"`
}

// UpdateMappingRequest changes the fields that are set.
type UpdateMappingRequest struct {
	SizeRaw    *string `json:"sizeRaw,omitempty" validate:"omitempty,min=1,max=32"`
	LoadIndex  *int    `json:"loadIndex,omitempty" validate:"omitempty,gte=1,lte=999"`
	SpeedIndex *string `json:"speedIndex,omitempty" validate:"omitempty,speedindex"`
}

// Empty reports whether the request changes nothing.
func (r UpdateMappingRequest) Empty() bool {
	return r.SizeRaw == nil && r.LoadIndex == nil && r.SpeedIndex == nil
}

func mappingPath(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.NewValidationError("mapping id is required")
	}
	return MappingsPath + "/" + url.PathEscape(id), nil
}

// ListMappings returns all mappings.
func (c *Client) ListMappings(ctx context.Context) ([]Mapping, error) {
	cl := call{method: http.MethodGet, route: MappingsPath, path: MappingsPath, admin: true}

	var out []Mapping
	if err := c.do(ctx, cl, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetMapping returns the mapping with id.
func (c *Client) GetMapping(ctx context.Context, id string) (*Mapping, error) {
	path, err := mappingPath(id)
	if err != nil {
		return nil, err
	}
	cl := call{method: http.MethodGet, route: mappingRoute, path: path, admin: true}

	var out Mapping
	if err := c.do(ctx, cl, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateMapping creates a mapping.
func (c *Client) CreateMapping(ctx context.Context, req CreateMappingRequest) (*Mapping, error) {
	req.SizeRaw = strings.TrimSpace(req.SizeRaw)
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	cl, err := jsonCall(http.MethodPost, MappingsPath, MappingsPath, req)
	if err != nil {
		return nil, err
	}
	cl.admin = true

	var out Mapping
	if err := c.do(ctx, cl, &out); err != nil {
		if errors.HasCode(err, errors.ErrCodeConflict) {
			return nil, errors.Wrap(errors.ErrCodeConflict, "a mapping for "+req.SizeRaw+" already exists", err).
				WithSuggestion("Use 'tirecode mappings list' to find it")
		}
		return nil, err
	}
	return &out, nil
}

// UpdateMapping patches the mapping with id.
func (c *Client) UpdateMapping(ctx context.Context, id string, req UpdateMappingRequest) (*Mapping, error) {
	path, err := mappingPath(id)
	if err != nil {
		return nil, err
	}
	if req.Empty() {
		return nil, errors.NewValidationError("nothing to update").
			WithSuggestion("Pass at least one of --size, --load-index or --speed-index")
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	cl, err := jsonCall(http.MethodPatch, mappingRoute, path, req)
	if err != nil {
		return nil, err
	}
	cl.admin = true

	var out Mapping
	if err := c.do(ctx, cl, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteMapping deletes the mapping with id.
func (c *Client) DeleteMapping(ctx context.Context, id string) error {
	path, err := mappingPath(id)
	if err != nil {
		return err
	}
	return c.do(ctx, call{method: http.MethodDelete, route: mappingRoute, path: path, admin: true}, nil)
}
