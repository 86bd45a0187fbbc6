package mem

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/veandco/go-sdl2/sdl"
)

const framesPerSecond = 60

// renderer owns the SDL window. All SDL calls happen on one locked OS
// thread; the only state shared with the CPU thread is the Video
// buffer (short mutex) and the interrupt line (atomic).
type renderer struct {
	video *Video
	quit  chan struct{}
	done  chan struct{}
}

func newRenderer(v *Video) (*renderer, error) {
	r := &renderer{
		video: v,
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}

	errCh := make(chan error, 1)
	go r.loop(errCh)
	if err := <-errCh; err != nil {
		return nil, err
	}
	return r, nil
}

func (r *renderer) stop() {
	close(r.quit)
	<-r.done
}

func (r *renderer) loop(errCh chan<- error) {
	runtime.LockOSThread()
	defer close(r.done)

	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		errCh <- fmt.Errorf("failed to init SDL: %w", err)
		return
	}
	defer sdl.Quit()

	window, err := sdl.CreateWindow(
		"rv32sim",
		sdl.WINDOWPOS_CENTERED, sdl.WINDOWPOS_CENTERED,
		VideoWidth, VideoHeight,
		sdl.WINDOW_SHOWN,
	)
	if err != nil {
		errCh <- fmt.Errorf("failed to create window: %w", err)
		return
	}
	defer func() { _ = window.Destroy() }()

	canvas, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED)
	if err != nil {
		errCh <- fmt.Errorf("failed to create renderer: %w", err)
		return
	}
	defer func() { _ = canvas.Destroy() }()

	// ABGR8888 stores bytes as R,G,B,A on little-endian hosts,
	// matching the guest's RGBA framebuffer layout.
	texture, err := canvas.CreateTexture(
		sdl.PIXELFORMAT_ABGR8888, sdl.TEXTUREACCESS_STREAMING,
		VideoWidth, VideoHeight,
	)
	if err != nil {
		errCh <- fmt.Errorf("failed to create texture: %w", err)
		return
	}
	defer func() { _ = texture.Destroy() }()

	errCh <- nil

	frame := make([]byte, FramebufferSize)
	for {
		select {
		case <-r.quit:
			return
		default:
		}

		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch e := event.(type) {
			case *sdl.QuitEvent:
				return
			case *sdl.KeyboardEvent:
				r.video.PostKey(e.Type == sdl.KEYDOWN, uint32(e.Keysym.Sym))
			}
		}

		r.video.snapshot(frame)

		_ = texture.Update(nil, unsafe.Pointer(&frame[0]), VideoWidth*4)
		_ = canvas.Clear()
		_ = canvas.Copy(texture, nil, nil)
		canvas.Present()

		sdl.Delay(1000 / framesPerSecond)
	}
}
