package audio

import "context"

// Concatenator merges two audio files into one. It is the collaborator the
// forward flow uses to merge a recorded comment with the forwarded audio.
// Implementations typically shell out to a media tool or use a codec
// library; neither is provided here.
//
// Concat writes the merged audio of first followed by second to
// outputPath. It is synchronous and may fail. The caller owns all three
// paths and removes outputPath on every exit path, success or failure.
type Concatenator interface {
	Concat(ctx context.Context, outputPath, firstPath, secondPath string) error
}

// ConcatFunc adapts a plain function to the Concatenator interface.
type ConcatFunc func(ctx context.Context, outputPath, firstPath, secondPath string) error

// Concat calls f.
func (f ConcatFunc) Concat(ctx context.Context, outputPath, firstPath, secondPath string) error {
	return f(ctx, outputPath, firstPath, secondPath)
}
