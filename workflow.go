package snaprestore

import (
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

const (
	// DefaultWaitInterval is the re-invocation delay for polling steps that
	// do not configure their own and whose handlers omit RetryAfter.
	DefaultWaitInterval = 5 * time.Minute

	// DefaultMaxPollAttempts bounds the poll self-loop per step. At the
	// default wait interval this amounts to roughly 24 hours.
	DefaultMaxPollAttempts = 288
)

// StepSpec describes one step of a workflow definition.
type StepSpec struct {
	Name    Step
	Handler Handler

	// Next is the step to advance to on success. Empty on the final step,
	// which terminates the operation as Succeeded.
	Next Step

	// Poll is the step the operation remains on while the handler reports
	// IN_PROGRESS. It defaults to the step itself.
	Poll Step

	Retry        RetryPolicy
	WaitInterval time.Duration
}

// Definition is the static, ordered step table of a workflow. Built once via
// NewBuilder and never mutated afterwards.
type Definition struct {
	name  string
	steps []StepSpec
	index map[Step]int
}

func (d *Definition) Name() string {
	return d.name
}

// First returns the entry step of the workflow.
func (d *Definition) First() StepSpec {
	return d.steps[0]
}

func (d *Definition) Lookup(step Step) (StepSpec, bool) {
	i, ok := d.index[step]
	if !ok {
		return StepSpec{}, false
	}

	return d.steps[i], true
}

// Steps returns the step specs in workflow order.
func (d *Definition) Steps() []StepSpec {
	steps := make([]StepSpec, len(d.steps))
	copy(steps, d.steps)
	return steps
}

func NewBuilder(name string) *Builder {
	return &Builder{
		definition: &Definition{
			name:  name,
			index: make(map[Step]int),
		},
		explicitNext: make(map[Step]bool),
	}
}

type Builder struct {
	definition *Definition
	err        error

	// explicitNext records steps whose Next was set via WithNext so that
	// implicit chaining does not overwrite an intentional target.
	explicitNext map[Step]bool
}

type stepOptions struct {
	next         Step
	nextSet      bool
	poll         Step
	retry        RetryPolicy
	retrySet     bool
	waitInterval time.Duration
}

type StepOption func(so *stepOptions)

// WithNext overrides the default advance target, which is the step added
// immediately after this one.
func WithNext(next Step) StepOption {
	return func(so *stepOptions) {
		so.next = next
		so.nextSet = true
	}
}

// WithPoll sets the step the operation stays on while the handler reports
// IN_PROGRESS. Rarely needed: the default self-loop covers status checks.
func WithPoll(poll Step) StepOption {
	return func(so *stepOptions) {
		so.poll = poll
	}
}

func WithRetry(policy RetryPolicy) StepOption {
	return func(so *stepOptions) {
		so.retry = policy
		so.retrySet = true
	}
}

func WithWaitInterval(d time.Duration) StepOption {
	return func(so *stepOptions) {
		so.waitInterval = d
	}
}

// AddStep appends a step to the workflow. Steps advance in the order they are
// added unless WithNext overrides the target.
func (b *Builder) AddStep(name Step, handler Handler, opts ...StepOption) *Builder {
	if b.err != nil {
		return b
	}

	if name == "" {
		b.err = errors.Wrap(ErrStepNotConfigured, "step name is empty")
		return b
	}

	if handler == nil {
		b.err = errors.Wrap(ErrStepNotConfigured, "step handler is nil", j.KV("step", string(name)))
		return b
	}

	if _, ok := b.definition.index[name]; ok {
		b.err = errors.Wrap(ErrStepNotConfigured, "duplicate step name", j.KV("step", string(name)))
		return b
	}

	var so stepOptions
	for _, opt := range opts {
		opt(&so)
	}

	spec := StepSpec{
		Name:         name,
		Handler:      handler,
		Poll:         name,
		Retry:        DefaultRetryPolicy(),
		WaitInterval: DefaultWaitInterval,
	}

	if so.nextSet {
		spec.Next = so.next
		b.explicitNext[name] = true
	}
	if so.poll != "" {
		spec.Poll = so.poll
	}
	if so.retrySet {
		spec.Retry = so.retry
	}
	if so.waitInterval > 0 {
		spec.WaitInterval = so.waitInterval
	}

	b.definition.index[name] = len(b.definition.steps)
	b.definition.steps = append(b.definition.steps, spec)

	// Chain the previous step onto this one unless it chose its own target.
	if len(b.definition.steps) > 1 {
		prev := &b.definition.steps[len(b.definition.steps)-2]
		if prev.Next == "" && !b.explicitNext[prev.Name] {
			prev.Next = name
		}
	}

	return b
}

// Build validates the definition and returns it. All Next and Poll targets
// must reference defined steps, and Next must point forward: operations only
// ever advance through the step order, with the poll self-loop as the sole
// way to revisit a step.
func (b *Builder) Build() (*Definition, error) {
	if b.err != nil {
		return nil, b.err
	}

	if len(b.definition.steps) == 0 {
		return nil, errors.Wrap(ErrStepNotConfigured, "workflow has no steps", j.KV("workflow", b.definition.name))
	}

	for i, spec := range b.definition.steps {
		if spec.Next != "" {
			next, ok := b.definition.index[spec.Next]
			if !ok {
				return nil, errors.Wrap(ErrStepNotConfigured, "next step is not defined", j.MKV{
					"step": string(spec.Name),
					"next": string(spec.Next),
				})
			}

			if next <= i {
				return nil, errors.Wrap(ErrStepNotConfigured, "next step must be later in the workflow", j.MKV{
					"step": string(spec.Name),
					"next": string(spec.Next),
				})
			}
		}

		if _, ok := b.definition.index[spec.Poll]; !ok {
			return nil, errors.Wrap(ErrStepNotConfigured, "poll step is not defined", j.MKV{
				"step": string(spec.Name),
				"poll": string(spec.Poll),
			})
		}
	}

	return b.definition, nil
}
