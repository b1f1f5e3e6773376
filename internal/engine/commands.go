package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/skyex/desk/internal/api"
	"github.com/skyex/desk/internal/emoji"
	"github.com/skyex/desk/internal/model"
)

// AdminRole gates the administrative commands.
const AdminRole = "admin"

// WithRoles attaches a role checker for the administrative commands.
// Without one every user passes.
func (e *Engine) WithRoles(roles api.RoleChecker) *Engine {
	e.roles = roles
	return e
}

// Process parses a text command, validates its arguments and dispatches to
// the matching operation. The reply carries the outcome for the user.
func (e *Engine) Process(command api.Command) (*api.Message, error) {
	fields := strings.Fields(command.Content)
	if len(fields) == 0 {
		return nil, fmt.Errorf("cannot parse empty command: %w", api.ErrInvalidArgument)
	}

	var reply *api.Message
	var err error
	switch op := fields[0]; op {
	case "open":
		reply, err = e.processOpen(command, fields)
	case "claim":
		reply, err = e.processTransition(command, fields, op)
	case "release":
		reply, err = e.processTransition(command, fields, op)
	case "complete":
		reply, err = e.processTransition(command, fields, op)
	case "close":
		reply, err = e.processClose(command, fields)
	case "ticket":
		reply, err = e.processTicket(command, fields)
	case "rate":
		reply, err = e.processRate(command)
	case "rates":
		reply, err = e.processRates()
	case "convert":
		reply, err = e.processConvert(command)
	case "broker":
		reply, err = e.processBroker(command, fields)
	case "warn":
		reply, err = e.processWarn(command, fields)
	case "unwarn":
		reply, err = e.processUnwarn(command, fields)
	case "warnings":
		reply, err = e.processWarnings(command, fields)
	case "fee":
		reply, err = e.processFee(command, fields)
	case "profile":
		reply, err = e.processProfile(command, fields)
	case "client":
		reply, err = e.processClient(command, fields)
	default:
		return nil, fmt.Errorf("unknown command '%s': %w", op, api.ErrInvalidArgument)
	}
	if err != nil {
		return api.NewMessage(fmt.Sprintf("%s %s", emoji.Error, err.Error())).ReplyTo(command.ID), err
	}
	return reply.ReplyTo(command.ID), nil
}

// open <handle> <client> <direction> <amount> <asset>
func (e *Engine) processOpen(command api.Command, fields []string) (*api.Message, error) {
	var direction string
	var amount decimal.Decimal
	err := command.Validate(api.AnyUser(), api.Contains("open"),
		api.NotEmpty, api.NotEmpty,
		api.OneOf(&direction, directionArgs()...),
		api.Amount(&amount),
		api.NotEmpty)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), api.ErrInvalidArgument)
	}
	ticket, err := e.CreateTicket(fields[1], fields[2], model.Direction(direction), amount, fields[5])
	if err != nil {
		return nil, err
	}
	return api.NewMessage(fmt.Sprintf("%s ticket %s opened for %s reference units",
		emoji.Open, ticket.Handle, model.DisplayAmount(ticket.Amount))), nil
}

// claim|release|complete <handle> <broker>
func (e *Engine) processTransition(command api.Command, fields []string, op string) (*api.Message, error) {
	err := command.Validate(api.AnyUser(), api.Contains("claim", "release", "complete"),
		api.NotEmpty, api.NotEmpty)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), api.ErrInvalidArgument)
	}
	handle, brokerID := fields[1], fields[2]
	switch op {
	case "claim":
		ticket, err := e.ClaimTicket(handle, brokerID)
		if err != nil {
			return nil, err
		}
		return api.NewMessage(fmt.Sprintf("%s ticket %s claimed by %s",
			emoji.Lock, ticket.Handle, ticket.Claimant)), nil
	case "release":
		ticket, err := e.ReleaseTicket(handle, brokerID)
		if err != nil {
			return nil, err
		}
		return api.NewMessage(fmt.Sprintf("%s ticket %s is open again", emoji.Unlock, ticket.Handle)), nil
	default:
		completion, err := e.CompleteTicket(handle, brokerID)
		if err != nil {
			return nil, err
		}
		return api.NewMessage(fmt.Sprintf("%s trade %d booked for %s reference units",
			emoji.Confirm, completion.Trade.ID, model.DisplayAmount(completion.Trade.Amount))).
			AddLine(fmt.Sprintf("client volume %s (%s)",
				model.DisplayAmount(completion.ClientVolume), tierLabel(completion.ClientTier))).
			AddLine(fmt.Sprintf("broker volume %s (%s)",
				model.DisplayAmount(completion.BrokerVolume), tierLabel(completion.BrokerTier))), nil
	}
}

// close <handle>
func (e *Engine) processClose(command api.Command, fields []string) (*api.Message, error) {
	err := command.Validate(api.AnyUser(), api.Contains("close"), api.NotEmpty)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), api.ErrInvalidArgument)
	}
	if err := e.requireAdmin(command.User); err != nil {
		return nil, err
	}
	ticket, err := e.ForceCloseTicket(fields[1])
	if err != nil {
		return nil, err
	}
	return api.NewMessage(fmt.Sprintf("%s ticket %s force-closed", emoji.Trash, ticket.Handle)), nil
}

// ticket <handle>
func (e *Engine) processTicket(command api.Command, fields []string) (*api.Message, error) {
	err := command.Validate(api.AnyUser(), api.Contains("ticket"), api.NotEmpty)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), api.ErrInvalidArgument)
	}
	ticket, err := e.GetTicket(fields[1])
	if err != nil {
		return nil, err
	}
	msg := api.NewMessage(fmt.Sprintf("%s ticket %s : %s %s for %s",
		emoji.MapOpen(!ticket.Claimed()), ticket.Handle, ticket.Direction,
		model.DisplayAmount(ticket.Amount), ticket.ClientID))
	if ticket.Claimed() {
		msg.AddLine(fmt.Sprintf("claimed by %s", ticket.Claimant))
	}
	return msg, nil
}

// rate <direction> <value>
func (e *Engine) processRate(command api.Command) (*api.Message, error) {
	var direction string
	var value decimal.Decimal
	err := command.Validate(api.AnyUser(), api.Contains("rate"),
		api.OneOf(&direction, directionArgs()...),
		api.Amount(&value))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), api.ErrInvalidArgument)
	}
	if err := e.requireAdmin(command.User); err != nil {
		return nil, err
	}
	err = e.SetRate(model.Direction(direction), value)
	if err != nil {
		return nil, err
	}
	return api.NewMessage(fmt.Sprintf("%s rate for %s set to %s", emoji.Confirm, direction, value)), nil
}

func (e *Engine) processRates() (*api.Message, error) {
	msg := api.NewMessage(fmt.Sprintf("%s current rates", emoji.Money))
	for _, d := range model.KnownDirections() {
		if r, ok := e.Rates()[d]; ok {
			msg.AddLine(fmt.Sprintf("%s : %s", d, r))
		}
	}
	return msg, nil
}

// convert <direction> <amount>
func (e *Engine) processConvert(command api.Command) (*api.Message, error) {
	var direction string
	var amount decimal.Decimal
	err := command.Validate(api.AnyUser(), api.Contains("convert"),
		api.OneOf(&direction, directionArgs()...),
		api.Amount(&amount))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), api.ErrInvalidArgument)
	}
	conversion, err := e.Convert(model.Direction(direction), amount)
	if err != nil {
		return nil, err
	}
	return api.NewMessage(fmt.Sprintf("%s %s at rate %s : %s", emoji.Money,
		model.DisplayAmount(conversion.Amount), conversion.Rate,
		model.DisplayAmount(conversion.Converted))), nil
}

// broker <id> <holding> <cap,cap,...>
func (e *Engine) processBroker(command api.Command, fields []string) (*api.Message, error) {
	var holding decimal.Decimal
	err := command.Validate(api.AnyUser(), api.Contains("broker"),
		api.NotEmpty, api.Amount(&holding), api.NotEmpty)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), api.ErrInvalidArgument)
	}
	if err := e.requireAdmin(command.User); err != nil {
		return nil, err
	}
	capabilities := make([]model.Direction, 0)
	for _, c := range strings.Split(fields[3], ",") {
		capabilities = append(capabilities, model.Direction(c))
	}
	b, err := e.RegisterBroker(fields[1], holding, capabilities)
	if err != nil {
		return nil, err
	}
	return api.NewMessage(fmt.Sprintf("%s broker %s registered with limit %s",
		emoji.Confirm, b.ID, model.DisplayAmount(b.Limit()))), nil
}

// warn <broker> <reason ...>
func (e *Engine) processWarn(command api.Command, fields []string) (*api.Message, error) {
	err := command.Validate(api.AnyUser(), api.Contains("warn"), api.NotEmpty, api.NotEmpty)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), api.ErrInvalidArgument)
	}
	if err := e.requireAdmin(command.User); err != nil {
		return nil, err
	}
	warning, count, err := e.RecordWarning(fields[1], strings.Join(fields[2:], " "), command.User)
	if err != nil {
		return nil, err
	}
	return api.NewMessage(fmt.Sprintf("%s warning %d for %s (total %d)",
		emoji.Warning, warning.ID, warning.BrokerID, count)), nil
}

// unwarn <id>
func (e *Engine) processUnwarn(command api.Command, fields []string) (*api.Message, error) {
	err := command.Validate(api.AnyUser(), api.Contains("unwarn"), api.NotEmpty)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), api.ErrInvalidArgument)
	}
	if err := e.requireAdmin(command.User); err != nil {
		return nil, err
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("not a warning id '%s': %w", fields[1], api.ErrInvalidArgument)
	}
	err = e.RemoveWarning(id)
	if err != nil {
		return nil, err
	}
	return api.NewMessage(fmt.Sprintf("%s warning %d removed", emoji.Trash, id)), nil
}

// warnings <broker>
func (e *Engine) processWarnings(command api.Command, fields []string) (*api.Message, error) {
	err := command.Validate(api.AnyUser(), api.Contains("warnings"), api.NotEmpty)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), api.ErrInvalidArgument)
	}
	warnings := e.Warnings(fields[1])
	msg := api.NewMessage(fmt.Sprintf("%s %d warnings for %s", emoji.Warning, len(warnings), fields[1]))
	for _, w := range warnings {
		msg.AddLine(fmt.Sprintf("%d : %s (%s)", w.ID, w.Reason, w.IssuedBy))
	}
	return msg, nil
}

// fee <broker> [clear|<delta>]
func (e *Engine) processFee(command api.Command, fields []string) (*api.Message, error) {
	err := command.Validate(api.AnyUser(), api.Contains("fee"), api.NotEmpty)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), api.ErrInvalidArgument)
	}
	brokerID := fields[1]
	if len(fields) == 2 {
		return api.NewMessage(fmt.Sprintf("%s fee balance for %s : %s",
			emoji.Money, brokerID, model.DisplayAmount(e.Fee(brokerID)))), nil
	}
	if err := e.requireAdmin(command.User); err != nil {
		return nil, err
	}
	if fields[2] == "clear" {
		err = e.ClearFee(brokerID)
		if err != nil {
			return nil, err
		}
		return api.NewMessage(fmt.Sprintf("%s fee balance for %s cleared", emoji.Confirm, brokerID)), nil
	}
	delta, err := decimal.NewFromString(fields[2])
	if err != nil {
		return nil, fmt.Errorf("not a decimal delta '%s': %w", fields[2], api.ErrInvalidArgument)
	}
	balance, err := e.AdjustFee(brokerID, delta)
	if err != nil {
		return nil, err
	}
	return api.NewMessage(fmt.Sprintf("%s fee balance for %s : %s",
		emoji.Money, brokerID, model.DisplayAmount(balance))), nil
}

// profile <broker>
func (e *Engine) processProfile(command api.Command, fields []string) (*api.Message, error) {
	err := command.Validate(api.AnyUser(), api.Contains("profile"), api.NotEmpty)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), api.ErrInvalidArgument)
	}
	profile, err := e.BrokerProfile(fields[1])
	if err != nil {
		return nil, err
	}
	msg := api.NewMessage(fmt.Sprintf("%s broker %s", emoji.Money, profile.Broker.ID)).
		AddLine(fmt.Sprintf("trades %d, volume %s (%s)",
			profile.Trades, model.DisplayAmount(profile.Volume), tierLabel(profile.Tier))).
		AddLine(fmt.Sprintf("fee balance %s, warnings %d",
			model.DisplayAmount(profile.Fee), profile.Warnings))
	for _, trade := range profile.Recent {
		msg.AddLine(fmt.Sprintf("%d : %s %s %s for %s", trade.ID, trade.Direction,
			model.DisplayAmount(trade.Amount), trade.Asset, trade.ClientID))
	}
	return msg, nil
}

// client <id>
func (e *Engine) processClient(command api.Command, fields []string) (*api.Message, error) {
	err := command.Validate(api.AnyUser(), api.Contains("client"), api.NotEmpty)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), api.ErrInvalidArgument)
	}
	profile, err := e.ClientProfile(fields[1])
	if err != nil {
		return nil, err
	}
	return api.NewMessage(fmt.Sprintf("%s client %s", emoji.Money, profile.ClientID)).
		AddLine(fmt.Sprintf("trades %d, volume %s (%s)",
			profile.Trades, model.DisplayAmount(profile.Volume), tierLabel(profile.Tier))), nil
}

func (e *Engine) requireAdmin(user string) error {
	if e.roles == nil || e.roles.HasRole(user, AdminRole) {
		return nil
	}
	return fmt.Errorf("user '%s' is not an %s: %w", user, AdminRole, api.ErrForbidden)
}

func directionArgs() []string {
	dd := model.KnownDirections()
	args := make([]string, len(dd))
	for i, d := range dd {
		args[i] = string(d)
	}
	return args
}

func tierLabel(tier model.Tier) string {
	if tier == model.NoTier {
		return "no tier"
	}
	return string(tier)
}
