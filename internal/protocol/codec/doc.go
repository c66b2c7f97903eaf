// Package codec owns composable binary codecs.
//
// A Codec is an immutable pair of encode/decode functions over a
// buffer.Buffer. Codecs compose: String and ByteBlock take a length prefix
// codec, Enum wraps a scalar codec, Header selects a body codec by a leading
// discriminator, and Frame decodes an ordered sequence of codecs.
//
// Decode has three outcomes:
//   - (value, true, nil): a full value was consumed.
//   - (nil, false, nil): not enough bytes yet; the read cursor is unchanged.
//   - (nil, false, err): the bytes can never form a valid value.
//
// All scalars are big-endian.
package codec
