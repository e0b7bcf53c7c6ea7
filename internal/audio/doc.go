// Package audio implements the PCM transport codec: conversion between raw
// floating-point samples, signed 16-bit little-endian PCM, and the base64
// framing used on the live stream, plus normalization into playback buffers.
package audio
