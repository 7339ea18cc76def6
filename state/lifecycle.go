package state

// Room lifecycle phase ids.
const (
	PhaseCreated    = "created"
	PhaseInProgress = "in_progress"
	PhaseTerminal   = "terminal"
	PhaseDiscarded  = "discarded"
)

// Lifecycle is the linear room state machine:
// created -> in_progress -> terminal -> discarded, with created/in_progress -> discarded
// for voided rooms. No phase can be re-entered.
type Lifecycle struct {
	*BaseStateMachine
	Created    *Phase
	InProgress *Phase
	Terminal   *Phase
	Discarded  *Phase
}

// LifecycleHooks run when the matching phase is entered.
type LifecycleHooks struct {
	OnInProgress func()
	OnTerminal   func()
	OnDiscarded  func()
}

func NewLifecycle(hooks LifecycleHooks) *Lifecycle {
	l := &Lifecycle{
		Created:    &Phase{ID: PhaseCreated},
		InProgress: &Phase{ID: PhaseInProgress, Enter: hooks.OnInProgress},
		Terminal:   &Phase{ID: PhaseTerminal, Enter: hooks.OnTerminal},
		Discarded:  &Phase{ID: PhaseDiscarded, Enter: hooks.OnDiscarded},
	}
	l.BaseStateMachine = NewStrictStateMachine(l.Created)

	_ = l.AddTransition(l.Created, l.InProgress, nil)
	_ = l.AddTransition(l.Created, l.Discarded, nil)
	_ = l.AddTransition(l.InProgress, l.Terminal, nil)
	_ = l.AddTransition(l.InProgress, l.Discarded, nil)
	_ = l.AddTransition(l.Terminal, l.Discarded, nil)
	return l
}

func (l *Lifecycle) Start() error     { return l.ChangeState(l.InProgress) }
func (l *Lifecycle) Terminate() error { return l.ChangeState(l.Terminal) }
func (l *Lifecycle) Discard() error   { return l.ChangeState(l.Discarded) }

func (l *Lifecycle) Phase() string {
	return l.GetCurrentState().GetID()
}
