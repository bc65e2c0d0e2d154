// Package framestore keeps the last captured frame of every device for the
// operator panel.
//
// Frames are held as snappy-compressed NRGBA pixels and only encoded to PNG
// when somebody asks for one.
package framestore
