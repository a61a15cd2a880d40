//go:build !linux && !darwin

package bridge

func NativeDialogs() Dialogs {
	return NewTerminalDialogs()
}
