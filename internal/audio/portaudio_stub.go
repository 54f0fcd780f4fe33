//go:build !portaudio

package audio

func NewPortAudioDevice(string) (Device, error) {
	return nil, &EngineError{Op: "open portaudio", Err: ErrBackendUnavailable}
}

func NewPortAudioConfigurator() (SessionConfigurator, error) {
	return nil, &SessionConfigurationError{Setting: "host api", Err: ErrBackendUnavailable}
}
