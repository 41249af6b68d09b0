// Package audio decodes synthesized speech into PCM clips and plays them on a
// process-wide output device. The device is opened lazily through a Handle and
// clips are streamed to it through a resampling Source.
package audio
