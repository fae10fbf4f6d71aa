//go:build !cgo

package tracking

func init() {
	IsCgoEnabled = false
}
