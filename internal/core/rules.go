package core

import "datacore/pkg/domain"

// DefaultRulesEngine returns an engine with the full invariant rule set
// evaluated at every transaction commit.
func DefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(LifecycleTransitionRule())
	engine.Register(VersionContiguityRule())
	engine.Register(StateMirrorRule())
	engine.Register(MetadataCompletenessRule())
	return engine
}
