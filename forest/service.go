package forest

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Service is the entry point used by the HTTP, CLI and stream layers.
type Service struct {
	store     NodeStore
	validator *Validator
	logger    *zap.Logger
	onCorrupt func(op string, err error)
}

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	config    Config
	logger    *zap.Logger
	onCorrupt func(op string, err error)
}

// WithConfig sets the label policy.
func WithConfig(cfg Config) Option {
	return func(o *serviceOptions) { o.config = cfg }
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(logger *zap.Logger) Option {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithIntegrityHook registers fn to be called with every corrupt tree error
// the service returns, whether the store or the builder detected it.
func WithIntegrityHook(fn func(op string, err error)) Option {
	return func(o *serviceOptions) { o.onCorrupt = fn }
}

// NewService creates a Service over store.
func NewService(store NodeStore, opts ...Option) *Service {
	o := serviceOptions{
		config: DefaultConfig(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Service{
		store:     store,
		validator: NewValidator(o.config, store),
		logger:    o.logger,
		onCorrupt: o.onCorrupt,
	}
}

// Validator returns the validator used on the write path.
func (s *Service) Validator() *Validator {
	return s.validator
}

// CreateNode validates and persists a new node.
func (s *Service) CreateNode(ctx context.Context, label string, parentID *int64) (Node, error) {
	res, err := s.validator.Validate(ctx, label, parentID)
	if err != nil {
		return Node{}, s.fail("create", err)
	}

	node, err := s.store.Create(ctx, res.Label, res.ParentID)
	if err != nil {
		return Node{}, s.fail("create", err)
	}

	s.logger.Info("node created",
		zap.Int64("id", node.ID),
		zap.String("label", node.Label),
		parentField(node.ParentID),
	)
	return node, nil
}

// GetForest reads every node and returns the materialized forest.
func (s *Service) GetForest(ctx context.Context) ([]*View, error) {
	nodes, err := s.store.FetchAll(ctx)
	if err != nil {
		return nil, s.fail("fetch", err)
	}

	forest, err := Build(nodes)
	if err != nil {
		return nil, s.fail("build", err)
	}

	s.logger.Debug("forest materialized",
		zap.Int("nodes", len(nodes)),
		zap.Int("trees", len(forest)),
	)
	return forest, nil
}

// CloneSubtree copies the subtree rooted at targetID under parentID and
// returns the copy of the target.
//
// The source subtree is read from a single snapshot, so cloning a node into
// its own subtree terminates. Copies are created breadth-first, each after
// its parent; if a later create fails, the copies made so far still form a
// valid subtree under parentID. Every copied label must satisfy the current
// label policy; the whole clone is rejected before any write otherwise.
func (s *Service) CloneSubtree(ctx context.Context, targetID, parentID int64) (Node, error) {
	forest, err := s.GetForest(ctx)
	if err != nil {
		return Node{}, err
	}

	source := Find(forest, targetID)
	if source == nil {
		return Node{}, s.fail("clone", &NodeNotFoundError{ID: targetID})
	}

	labels := make(map[int64]string)
	var invalid error
	Walk([]*View{source}, func(_ int, v *View) bool {
		label, err := s.validator.ValidateLabel(v.Label)
		if err != nil {
			if invalid == nil {
				invalid = err
			}
			return false
		}
		labels[v.ID] = label
		return true
	})
	if invalid != nil {
		return Node{}, s.fail("clone", invalid)
	}

	root, err := s.CreateNode(ctx, labels[source.ID], Int64(parentID))
	if err != nil {
		return Node{}, err
	}

	type pending struct {
		src *View
		dst int64
	}

	copied := 1
	queue := []pending{{src: source, dst: root.ID}}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		for _, child := range p.src.Children {
			created, err := s.store.Create(ctx, labels[child.ID], Int64(p.dst))
			if err != nil {
				s.logger.Warn("clone stopped early",
					zap.Int64("target", targetID),
					zap.Int64("cloneRoot", root.ID),
					zap.Int("copied", copied),
				)
				return Node{}, s.fail("clone", err)
			}
			copied++
			queue = append(queue, pending{src: child, dst: created.ID})
		}
	}

	s.logger.Info("subtree cloned",
		zap.Int64("target", targetID),
		zap.Int64("parent", parentID),
		zap.Int64("cloneRoot", root.ID),
		zap.Int("copied", copied),
	)
	return root, nil
}

// fail normalizes err to one of the package error kinds and logs it.
func (s *Service) fail(op string, err error) error {
	err = Unavailable(op, err)

	switch {
	case errors.Is(err, ErrCorruptTree):
		s.logger.Error("integrity violation", zap.String("op", op), zap.Error(err))
		if s.onCorrupt != nil {
			s.onCorrupt(op, err)
		}
	case IsCancelled(err):
		s.logger.Debug("request cancelled", zap.String("op", op), zap.Error(err))
	case errors.Is(err, ErrStoreUnavailable):
		s.logger.Error("store failure", zap.String("op", op), zap.Error(err))
	default:
		s.logger.Warn("request rejected", zap.String("op", op), zap.Error(err))
	}
	return err
}

func parentField(parentID *int64) zap.Field {
	if parentID == nil {
		return zap.Skip()
	}
	return zap.Int64("parentId", *parentID)
}
