package cpu

import (
	"testing"

	"go.uber.org/mock/gomock"
)

//go:generate mockgen -destination mock_cpu_test.go -package $GOPACKAGE -write_package_comment=false kestrel/kernel/cpu Controller

func TestWithInterruptsDisabled(t *testing.T) {
	t.Run("restores enabled flag", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		c := NewMockController(ctrl)

		var ran bool
		gomock.InOrder(
			c.EXPECT().InterruptsEnabled().Return(true),
			c.EXPECT().DisableInterrupts(),
			c.EXPECT().EnableInterrupts(),
		)

		WithInterruptsDisabled(c, func() { ran = true })

		if !ran {
			t.Fatal("expected closure to be invoked")
		}
	})

	t.Run("keeps interrupts disabled", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		c := NewMockController(ctrl)

		gomock.InOrder(
			c.EXPECT().InterruptsEnabled().Return(false),
			c.EXPECT().DisableInterrupts(),
		)
		c.EXPECT().EnableInterrupts().Times(0)

		WithInterruptsDisabled(c, func() {})
	})

	t.Run("restores flag when closure panics", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		c := NewMockController(ctrl)

		gomock.InOrder(
			c.EXPECT().InterruptsEnabled().Return(true),
			c.EXPECT().DisableInterrupts(),
			c.EXPECT().EnableInterrupts(),
		)

		defer func() {
			if r := recover(); r != "boom" {
				t.Fatalf("expected panic value %q; got %v", "boom", r)
			}
		}()

		WithInterruptsDisabled(c, func() { panic("boom") })
	})
}
