package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
)

// ChooseActionTool is the MCP tool an oracle server must provide. It receives
// an Observation and answers {"action": <id>}, or a bare integer as text.
const ChooseActionTool = "choose_action"

// ErrOracleReply is returned when the oracle's answer cannot be read as an action id.
var ErrOracleReply = errors.New("unreadable oracle reply")

// MCPOracle is an Oracle served by an MCP server.
type MCPOracle struct {
	session *sdk.ClientSession
}

// ActionReply is the structured result of the choose_action tool.
type ActionReply struct {
	Action int `json:"action" jsonschema:"the chosen action id, negative to defer"`
}

// DialMCPOracle launches command (split on whitespace) and connects to it over stdio.
func DialMCPOracle(ctx context.Context, command string) (*MCPOracle, error) {
	args := strings.Fields(command)
	if len(args) == 0 {
		return nil, ErrNoOracleCommand
	}
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stderr = os.Stderr
	client := sdk.NewClient(&sdk.Implementation{Name: "adsim", Version: "v1.0.0"}, nil)
	session, err := client.Connect(ctx, &sdk.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to oracle %q: %w", args[0], err)
	}
	logrus.Infof("connected to external oracle %q", command)
	return NewMCPOracle(session), nil
}

// NewMCPOracle wraps an established client session.
func NewMCPOracle(session *sdk.ClientSession) *MCPOracle {
	return &MCPOracle{session: session}
}

func (o *MCPOracle) ChooseAction(ctx context.Context, obs Observation) (int, error) {
	res, err := o.session.CallTool(ctx, &sdk.CallToolParams{Name: ChooseActionTool, Arguments: obs})
	if err != nil {
		return 0, fmt.Errorf("calling %s: %w", ChooseActionTool, err)
	}
	if res.IsError {
		return 0, fmt.Errorf("%s failed: %s", ChooseActionTool, resultText(res))
	}
	return parseActionReply(res)
}

// Close ends the session and stops the oracle process.
func (o *MCPOracle) Close() error {
	return o.session.Close()
}

func parseActionReply(res *sdk.CallToolResult) (int, error) {
	if res.StructuredContent != nil {
		data, err := json.Marshal(res.StructuredContent)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrOracleReply, err)
		}
		if id, ok := decodeAction(data); ok {
			return id, nil
		}
	}
	text := strings.TrimSpace(resultText(res))
	if id, err := strconv.Atoi(text); err == nil {
		return id, nil
	}
	if id, ok := decodeAction([]byte(text)); ok {
		return id, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrOracleReply, text)
}

func decodeAction(data []byte) (int, bool) {
	var reply struct {
		Action *int `json:"action"`
	}
	if err := json.Unmarshal(data, &reply); err != nil || reply.Action == nil {
		return 0, false
	}
	return *reply.Action, true
}

func resultText(res *sdk.CallToolResult) string {
	var sb strings.Builder
	for _, c := range res.Content {
		if t, ok := c.(*sdk.TextContent); ok {
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}
