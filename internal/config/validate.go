package config

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSource string

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error

	// cue.Context is not safe for concurrent use.
	schemaMu sync.Mutex
)

func loadSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile config schema: %w", err)
			return
		}
		schemaDef = v.LookupPath(cue.ParsePath("#Config"))
		if err := schemaDef.Err(); err != nil {
			schemaErr = fmt.Errorf("lookup #Config: %w", err)
		}
	})
	return schemaCtx, schemaDef, schemaErr
}

// Validate checks cfg against the embedded CUE schema, then checks the
// rules that span sections.
func Validate(cfg Config) error {
	ctx, schema, err := loadSchema()
	if err != nil {
		return err
	}

	cfg.normalize()
	schemaMu.Lock()
	defer schemaMu.Unlock()

	v := schema.Unify(ctx.Encode(cfg))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("config: invalid: %s", cueerrors.Details(err, nil))
	}
	return validateLease(cfg)
}

// validateLease keeps a claim alive for the whole broadcast when several
// workers share the store. A broadcast outliving its lease lets another
// worker claim and broadcast the same record again.
func validateLease(cfg Config) error {
	if cfg.Pipeline.Workers <= 1 {
		return nil
	}
	timeout, lease := cfg.Peer.PublishTimeout, cfg.Pipeline.ClaimLease
	if timeout <= 0 {
		return fmt.Errorf("config: invalid: peer.publish_timeout: must be set when pipeline.workers > 1")
	}
	if timeout >= lease {
		return fmt.Errorf("config: invalid: peer.publish_timeout: %s must be shorter than pipeline.claim_lease %s", timeout, lease)
	}
	return nil
}
