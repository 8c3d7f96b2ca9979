package ranging

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Lines is a trigger/echo pin pair opened on the host GPIO controller.
type Lines struct {
	Trigger gpio.PinIO
	Echo    gpio.PinIO
}

// OpenGPIO initialises the host drivers and resolves the two pins by name
// (for example "GPIO23"). The echo pin is configured for edge detection on
// both edges with a pull-down so an unplugged sensor reads low.
func OpenGPIO(triggerName, echoName string) (*Lines, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialise host drivers: %w", err)
	}

	trig := gpioreg.ByName(triggerName)
	if trig == nil {
		return nil, fmt.Errorf("unknown trigger pin %q", triggerName)
	}
	echo := gpioreg.ByName(echoName)
	if echo == nil {
		return nil, fmt.Errorf("unknown echo pin %q", echoName)
	}

	if err := trig.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("failed to configure trigger pin %s: %w", trig, err)
	}
	if err := echo.In(gpio.PullDown, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("failed to configure echo pin %s: %w", echo, err)
	}

	return &Lines{Trigger: trig, Echo: echo}, nil
}

// Close halts both pins.
func (l *Lines) Close() error {
	errT := l.Trigger.Halt()
	errE := l.Echo.Halt()
	if errT != nil {
		return errT
	}
	return errE
}
