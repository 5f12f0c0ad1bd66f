package remote

import (
	"context"
	"log/slog"
	"time"
)

// Gateway wraps a Storage with the retry policy. All engine traffic to the
// object store goes through it.
type Gateway struct {
	storage Storage
	policy  RetryPolicy
	logger  *slog.Logger
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) GatewayOption {
	return func(g *Gateway) {
		g.policy = p
	}
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(logger *slog.Logger) GatewayOption {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGateway creates a gateway over storage.
func NewGateway(storage Storage, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		storage: storage,
		policy:  DefaultRetryPolicy(3),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// WithMaxRetries returns a copy of g whose policy allows n retries.
func (g *Gateway) WithMaxRetries(n int) *Gateway {
	if n < 0 || n == g.policy.MaxRetries {
		return g
	}
	cp := *g
	cp.policy.MaxRetries = n
	return &cp
}

// ListChanged lists files of folderID created or modified after since.
func (g *Gateway) ListChanged(ctx context.Context, folderID string, since time.Time) ([]File, error) {
	return retry(ctx, g.policy, g.logger, "ListChanged", folderID, func(ctx context.Context) ([]File, error) {
		return g.storage.ListChanged(ctx, folderID, since)
	})
}

// ListFolders lists the immediate sub-folders of folderID.
func (g *Gateway) ListFolders(ctx context.Context, folderID string) ([]File, error) {
	return retry(ctx, g.policy, g.logger, "ListFolders", folderID, func(ctx context.Context) ([]File, error) {
		return g.storage.ListFolders(ctx, folderID)
	})
}

// Copy copies fileID into destFolderID as name. A failed call may still have
// produced the copy remotely.
func (g *Gateway) Copy(ctx context.Context, fileID, destFolderID, name string) (File, error) {
	return retry(ctx, g.policy, g.logger, "Copy", fileID, func(ctx context.Context) (File, error) {
		return g.storage.Copy(ctx, fileID, destFolderID, name)
	})
}

// CreateFolder creates name under parentID.
func (g *Gateway) CreateFolder(ctx context.Context, name, parentID string) (File, error) {
	return retry(ctx, g.policy, g.logger, "CreateFolder", parentID, func(ctx context.Context) (File, error) {
		return g.storage.CreateFolder(ctx, name, parentID)
	})
}

// FindByName returns the entries of parentID called name.
func (g *Gateway) FindByName(ctx context.Context, name, parentID string) ([]File, error) {
	return retry(ctx, g.policy, g.logger, "FindByName", parentID, func(ctx context.Context) ([]File, error) {
		return g.storage.FindByName(ctx, name, parentID)
	})
}

// FindOrCreateFolder returns the sub-folder name of parentID, creating it when missing.
func (g *Gateway) FindOrCreateFolder(ctx context.Context, name, parentID string) (File, error) {
	found, err := g.FindByName(ctx, name, parentID)
	if err != nil {
		return File{}, err
	}
	for _, f := range found {
		if f.IsFolder {
			return f, nil
		}
	}
	return g.CreateFolder(ctx, name, parentID)
}

// Link returns a human readable location for id.
func (g *Gateway) Link(id string) string {
	return g.storage.Link(id)
}
