package capability

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"hookrunner-server/models"
)

// Messenger posts a message to a messaging channel. Implemented by the Slack
// client; the bridge only depends on the call contract.
type Messenger interface {
	PostMessage(ctx context.Context, channel, text string) error
}

// IssueTracker files an issue on a code-hosting service.
type IssueTracker interface {
	CreateIssue(ctx context.Context, repo, title, body string) (*Issue, error)
}

// Issue is the value returned to handler code after filing an issue.
type Issue struct {
	URL   string `json:"html_url"`
	Title string `json:"title"`
	ID    int64  `json:"id"`
}

// Builtin is one host-provided side-effecting operation with a fixed
// argument shape. All current builtins take string arguments only.
type Builtin struct {
	Name string
	Args []string
	Run  func(ctx context.Context, args []string) (interface{}, error)
}

// Bridge holds the built-in capabilities exposed to handler code. It is
// constructed once at startup with long-lived integration clients and is
// stateless per call.
type Bridge struct {
	builtins map[string]Builtin
	names    []string
	log      *zap.Logger
}

// NewBridge wires the built-ins to their integration clients.
func NewBridge(messenger Messenger, tracker IssueTracker, log *zap.Logger) *Bridge {
	b := &Bridge{
		builtins: make(map[string]Builtin),
		log:      log,
	}

	b.register(Builtin{
		Name: "slack_post",
		Args: []string{"channel", "message"},
		Run: func(ctx context.Context, args []string) (interface{}, error) {
			if err := messenger.PostMessage(ctx, args[0], args[1]); err != nil {
				return nil, err
			}
			return true, nil
		},
	})

	b.register(Builtin{
		Name: "github_create_issue",
		Args: []string{"repo", "title", "body"},
		Run: func(ctx context.Context, args []string) (interface{}, error) {
			issue, err := tracker.CreateIssue(ctx, args[0], args[1], args[2])
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"html_url": issue.URL,
				"title":    issue.Title,
				"id":       issue.ID,
			}, nil
		},
	})

	return b
}

func (b *Bridge) register(builtin Builtin) {
	b.builtins[builtin.Name] = builtin
	b.names = append(b.names, builtin.Name)
}

// Names returns the builtin names in registration order. The executor binds
// exactly these into the handler's namespace.
func (b *Bridge) Names() []string {
	out := make([]string, len(b.names))
	copy(out, b.names)
	return out
}

// Invoke validates the call shape and delegates to the integration client.
// Unknown names and argument mismatches fail before any external call.
func (b *Bridge) Invoke(ctx context.Context, name string, args []interface{}) (interface{}, error) {
	builtin, ok := b.builtins[name]
	if !ok {
		return nil, &models.CapabilityError{
			Kind:       models.CapUnknown,
			Capability: name,
			Message:    fmt.Sprintf("no builtin named %q", name),
		}
	}

	if len(args) != len(builtin.Args) {
		return nil, &models.CapabilityError{
			Kind:       models.CapInvalidArgs,
			Capability: name,
			Message:    fmt.Sprintf("expected %d arguments (%v), got %d", len(builtin.Args), builtin.Args, len(args)),
		}
	}

	strArgs := make([]string, len(args))
	for i, arg := range args {
		s, ok := arg.(string)
		if !ok {
			return nil, &models.CapabilityError{
				Kind:       models.CapInvalidArgs,
				Capability: name,
				Message:    fmt.Sprintf("argument %q must be a string", builtin.Args[i]),
			}
		}
		strArgs[i] = s
	}

	out, err := builtin.Run(ctx, strArgs)
	if err != nil {
		b.log.Warn("capability call failed",
			zap.String("capability", name),
			zap.Error(err))
		return nil, &models.CapabilityError{
			Kind:       models.CapTransport,
			Capability: name,
			Message:    err.Error(),
		}
	}

	return out, nil
}
