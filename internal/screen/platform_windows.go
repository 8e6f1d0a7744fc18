//go:build windows

package screen

import (
	"context"
	"fmt"
	"image"
	"time"
	"unsafe"

	"github.com/kbinani/screenshot"
	"golang.org/x/sys/windows"

	apperrors "github.com/gamewatcher/watcher/internal/errors"
	"github.com/gamewatcher/watcher/internal/frame"
)

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	gdi32    = windows.NewLazySystemDLL("gdi32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procFindWindowW                = user32.NewProc("FindWindowW")
	procIsWindow                   = user32.NewProc("IsWindow")
	procIsIconic                   = user32.NewProc("IsIconic")
	procGetWindowRect              = user32.NewProc("GetWindowRect")
	procMonitorFromWindow          = user32.NewProc("MonitorFromWindow")
	procGetMonitorInfoW            = user32.NewProc("GetMonitorInfoW")
	procGetWindowDC                = user32.NewProc("GetWindowDC")
	procReleaseDC                  = user32.NewProc("ReleaseDC")
	procPrintWindow                = user32.NewProc("PrintWindow")
	procShowWindow                 = user32.NewProc("ShowWindow")
	procSetForegroundWindow        = user32.NewProc("SetForegroundWindow")
	procKeybdEvent                 = user32.NewProc("keybd_event")
	procOpenClipboard              = user32.NewProc("OpenClipboard")
	procCloseClipboard             = user32.NewProc("CloseClipboard")
	procGetClipboardData           = user32.NewProc("GetClipboardData")
	procGetClipboardSequenceNumber = user32.NewProc("GetClipboardSequenceNumber")
	procCreateCompatibleDC         = gdi32.NewProc("CreateCompatibleDC")
	procCreateCompatibleBitmap     = gdi32.NewProc("CreateCompatibleBitmap")
	procSelectObject               = gdi32.NewProc("SelectObject")
	procBitBlt                     = gdi32.NewProc("BitBlt")
	procDeleteDC                   = gdi32.NewProc("DeleteDC")
	procDeleteObject               = gdi32.NewProc("DeleteObject")
	procGetDIBits                  = gdi32.NewProc("GetDIBits")
	procGlobalLock                 = kernel32.NewProc("GlobalLock")
	procGlobalUnlock               = kernel32.NewProc("GlobalUnlock")
	procGlobalSize                 = kernel32.NewProc("GlobalSize")
)

const (
	srcCopy               = 0x00CC0020
	dibRGBColors          = 0
	pwRenderFullContent   = 0x2
	monitorDefaultNearest = 0x2
	swRestore             = 9
	cfDIB                 = 8
	vkShift               = 0x10
	vkMenu                = 0x12
	vkSnapshot            = 0x2C
	keyEventKeyUp         = 0x2
	clipboardWait         = 500 * time.Millisecond
)

type rect struct {
	Left, Top, Right, Bottom int32
}

func (r rect) image() image.Rectangle {
	return image.Rect(int(r.Left), int(r.Top), int(r.Right), int(r.Bottom))
}

type monitorInfo struct {
	Size    uint32
	Monitor rect
	Work    rect
	Flags   uint32
}

type bitmapInfoHeader struct {
	Size          uint32
	Width         int32
	Height        int32
	Planes        uint16
	BitCount      uint16
	Compression   uint32
	SizeImage     uint32
	XPelsPerMeter int32
	YPelsPerMeter int32
	ClrUsed       uint32
	ClrImportant  uint32
}

type bitmapInfo struct {
	Header bitmapInfoHeader
	Colors [1]uint32
}

// NewPlatform returns the Win32 capture backends and desktop hooks.
func NewPlatform() Platform {
	return Platform{
		Factory: openBackend,
		Locator: win32Locator{},
		Desktop: win32Desktop{},
	}
}

// FindWindow returns the top-level window whose title matches exactly.
func FindWindow(title string) (Handle, error) {
	p, err := windows.UTF16PtrFromString(title)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeConfigInvalid, "window title")
	}
	hwnd, _, _ := procFindWindowW.Call(0, uintptr(unsafe.Pointer(p)))
	if hwnd == 0 {
		return 0, apperrors.Newf(apperrors.CodeCaptureUnavailable, "no window titled %q", title)
	}
	return Handle(hwnd), nil
}

func openBackend(kind Kind, h Handle) (Backend, error) {
	if ok, _, _ := procIsWindow.Call(uintptr(h)); ok == 0 {
		return nil, apperrors.Newf(apperrors.CodeCaptureUnavailable, "handle %#x is not a window", uintptr(h))
	}
	switch kind {
	case KindCompositor, KindBlit:
		return gdiBackend{kind: kind}, nil
	case KindDuplication:
		return desktopBackend{}, nil
	default:
		return nil, apperrors.Newf(apperrors.CodeUnsupported, "backend %s", kind)
	}
}

type win32Locator struct{}

func (win32Locator) WindowRect(h Handle) (image.Rectangle, error) {
	var r rect
	if ok, _, err := procGetWindowRect.Call(uintptr(h), uintptr(unsafe.Pointer(&r))); ok == 0 {
		return image.Rectangle{}, fmt.Errorf("GetWindowRect: %w", err)
	}
	return r.image(), nil
}

func (win32Locator) MonitorRect(h Handle) (image.Rectangle, error) {
	mon, _, _ := procMonitorFromWindow.Call(uintptr(h), monitorDefaultNearest)
	if mon == 0 {
		return image.Rectangle{}, fmt.Errorf("MonitorFromWindow: no monitor")
	}
	mi := monitorInfo{Size: uint32(unsafe.Sizeof(monitorInfo{}))}
	if ok, _, err := procGetMonitorInfoW.Call(mon, uintptr(unsafe.Pointer(&mi))); ok == 0 {
		return image.Rectangle{}, fmt.Errorf("GetMonitorInfoW: %w", err)
	}
	return mi.Monitor.image(), nil
}

// gdiBackend renders the window through PrintWindow (compositor-aware) or copies
// its device context with BitBlt.
type gdiBackend struct{ kind Kind }

func (b gdiBackend) Kind() Kind { return b.kind }

func (gdiBackend) Close() error { return nil }

func (b gdiBackend) Capture(ctx context.Context, h Handle) (*frame.Frame, error) {
	bounds, err := win32Locator{}.WindowRect(h)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCaptureUnavailable, "window geometry")
	}
	if bounds.Empty() {
		return nil, apperrors.New(apperrors.CodeCaptureUnavailable, "window has no area")
	}

	paint := func(mem, win uintptr, w, hgt int) error {
		if ok, _, err := procBitBlt.Call(mem, 0, 0, uintptr(w), uintptr(hgt), win, 0, 0, srcCopy); ok == 0 {
			return fmt.Errorf("BitBlt: %w", err)
		}
		return nil
	}
	if b.kind == KindCompositor {
		paint = func(mem, _ uintptr, _, _ int) error {
			if ok, _, err := procPrintWindow.Call(uintptr(h), mem, pwRenderFullContent); ok == 0 {
				return fmt.Errorf("PrintWindow: %w", err)
			}
			return nil
		}
	}

	img, err := grabWindow(uintptr(h), bounds.Dx(), bounds.Dy(), paint)
	if err != nil {
		return nil, err
	}
	return frame.New(img, time.Now()), nil
}

// grabWindow paints the window into a memory bitmap and reads back its pixels.
func grabWindow(hwnd uintptr, w, h int, paint func(mem, win uintptr, w, h int) error) (*image.RGBA, error) {
	win, _, err := procGetWindowDC.Call(hwnd)
	if win == 0 {
		return nil, fmt.Errorf("GetWindowDC: %w", err)
	}
	defer procReleaseDC.Call(hwnd, win)

	mem, _, err := procCreateCompatibleDC.Call(win)
	if mem == 0 {
		return nil, fmt.Errorf("CreateCompatibleDC: %w", err)
	}
	defer procDeleteDC.Call(mem)

	bmp, _, err := procCreateCompatibleBitmap.Call(win, uintptr(w), uintptr(h))
	if bmp == 0 {
		return nil, fmt.Errorf("CreateCompatibleBitmap: %w", err)
	}
	defer procDeleteObject.Call(bmp)

	old, _, _ := procSelectObject.Call(mem, bmp)
	if err := paint(mem, win, w, h); err != nil {
		procSelectObject.Call(mem, old)
		return nil, err
	}
	procSelectObject.Call(mem, old)

	var bi bitmapInfo
	bi.Header.Size = uint32(unsafe.Sizeof(bi.Header))
	bi.Header.Width = int32(w)
	bi.Header.Height = -int32(h)
	bi.Header.Planes = 1
	bi.Header.BitCount = 32
	bi.Header.Compression = biRGB

	buf := make([]byte, w*h*4)
	if ok, _, err := procGetDIBits.Call(mem, bmp, 0, uintptr(h),
		uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&bi)), dibRGBColors); ok == 0 {
		return nil, fmt.Errorf("GetDIBits: %w", err)
	}
	return bgraToRGBA(buf, w, h), nil
}

// desktopBackend copies the window's rectangle from the desktop surface.
type desktopBackend struct{}

func (desktopBackend) Kind() Kind { return KindDuplication }

func (desktopBackend) Close() error { return nil }

func (desktopBackend) Capture(ctx context.Context, h Handle) (*frame.Frame, error) {
	bounds, err := win32Locator{}.WindowRect(h)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCaptureUnavailable, "window geometry")
	}
	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeBackendFault, "desktop capture")
	}
	return frame.New(img, time.Now()), nil
}

type win32Desktop struct{}

func (win32Desktop) Activate(h Handle) error {
	if iconic, _, _ := procIsIconic.Call(uintptr(h)); iconic != 0 {
		procShowWindow.Call(uintptr(h), swRestore)
	}
	if ok, _, _ := procSetForegroundWindow.Call(uintptr(h)); ok == 0 {
		return apperrors.New(apperrors.CodeCaptureUnavailable, "SetForegroundWindow refused")
	}
	return nil
}

func (win32Desktop) Nudge(Handle) error {
	procKeybdEvent.Call(vkShift, 0, 0, 0)
	procKeybdEvent.Call(vkShift, 0, keyEventKeyUp, 0)
	return nil
}

// SnapshotToClipboard presses Alt+PrintScreen on the foreground window and reads
// the resulting CF_DIB bitmap once the clipboard changes.
func (d win32Desktop) SnapshotToClipboard(ctx context.Context, h Handle) (image.Image, error) {
	if err := d.Activate(h); err != nil {
		return nil, err
	}
	seq, _, _ := procGetClipboardSequenceNumber.Call()

	procKeybdEvent.Call(vkMenu, 0, 0, 0)
	procKeybdEvent.Call(vkSnapshot, 0, 0, 0)
	procKeybdEvent.Call(vkSnapshot, 0, keyEventKeyUp, 0)
	procKeybdEvent.Call(vkMenu, 0, keyEventKeyUp, 0)

	deadline := time.Now().Add(clipboardWait)
	for {
		if cur, _, _ := procGetClipboardSequenceNumber.Call(); cur != seq {
			break
		}
		if time.Now().After(deadline) {
			return nil, apperrors.New(apperrors.CodeCaptureUnavailable, "clipboard did not change")
		}
		if err := sleepCtx(ctx, 20*time.Millisecond); err != nil {
			return nil, err
		}
	}

	data, err := readClipboardDIB()
	if err != nil {
		return nil, err
	}
	img, err := decodeDIB(data)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCaptureUnavailable, "clipboard bitmap")
	}
	return img, nil
}

func readClipboardDIB() ([]byte, error) {
	if ok, _, err := procOpenClipboard.Call(0); ok == 0 {
		return nil, apperrors.Wrap(err, apperrors.CodeCaptureUnavailable, "OpenClipboard")
	}
	defer procCloseClipboard.Call()

	hmem, _, _ := procGetClipboardData.Call(cfDIB)
	if hmem == 0 {
		return nil, apperrors.New(apperrors.CodeCaptureUnavailable, "clipboard holds no bitmap")
	}
	size, _, _ := procGlobalSize.Call(hmem)
	ptr, _, _ := procGlobalLock.Call(hmem)
	if ptr == 0 || size == 0 {
		return nil, apperrors.New(apperrors.CodeCaptureUnavailable, "GlobalLock failed")
	}
	defer procGlobalUnlock.Call(hmem)

	src := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), int(size))
	return append([]byte(nil), src...), nil
}
