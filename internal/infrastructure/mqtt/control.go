package mqtt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/indihub/internal/control"
)

// ControlHandler returns a MessageHandler that treats each non-blank line
// of a payload as a control command and passes it to submit. Lines that do
// not parse are reported together in the returned error; the rest still
// run.
func ControlHandler(submit func(control.Command)) MessageHandler {
	return func(_ string, payload []byte) error {
		var errs []error
		for _, line := range strings.Split(string(payload), "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			cmd, err := control.Parse(line)
			if err != nil {
				errs = append(errs, fmt.Errorf("control line %q: %w", strings.TrimSpace(line), err))
				continue
			}
			submit(cmd)
		}
		return errors.Join(errs...)
	}
}

// SubscribeControl subscribes to indihub/control with the configured QoS.
func (c *Client) SubscribeControl(submit func(control.Command)) error {
	return c.Subscribe(Topics{}.Control(), byte(c.cfg.QoS), ControlHandler(submit))
}
