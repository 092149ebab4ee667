package vram

//go:generate mockgen -source device.go -destination ./mocks/device.go -package mock_vram

// Device is the hardware the engine drives. Every call is synchronous and complete when it returns.
//
// SetBankMode is idempotent. Copy, Read and Fill address memory through the LCD windows or the
// CPU-mapped sprite windows; an implementation may refuse LCD-window access to a bank that is not
// currently in BankModeLCD.
type Device interface {
	SetBankMode(bank Bank, mode BankMode)
	Copy(dst uint32, src []byte) error
	Read(src uint32, dst []byte) error
	Fill(dst uint32, size int, value byte) error
}
