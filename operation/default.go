package operation

import "spectro-rpc/codec"

// Subtype codes of the built-in operations.
const (
	SubtypeIntegrationTime byte = '0'
	SubtypeIntensities     byte = 'a'
	SubtypeWavelengths     byte = 'b'
	SubtypeSerialNumber    byte = 'c'
	SubtypeDeviceList      byte = 'l'
	SubtypeSelection       byte = 's'
)

// Operation names as they appear after the get_/set_ prefix.
const (
	IntegrationTimeMicros = "integration_time_micros"
	Intensities           = "intensities"
	Wavelengths           = "wavelengths"
	SerialNumber          = "serial_number"
	DeviceList            = "device_list"
	Spectrometer          = "spectrometer"
)

// DeviceListSeparator joins device names in the device_list text payload.
const DeviceListSeparator = ","

// NoSelection is the spectrometer index meaning "no device selected".
const NoSelection = -1

var defaultTable = MustNewTable(
	Descriptor{
		Subtype: SubtypeIntegrationTime, Name: IntegrationTimeMicros, Kind: KindIntegrationTime,
		GetArg: codec.Empty, GetReturn: codec.Integer,
		SetArg: codec.Integer, SetReturn: codec.Integer,
	},
	Descriptor{
		Subtype: SubtypeIntensities, Name: Intensities, Kind: KindIntensities,
		GetArg: codec.Empty, GetReturn: codec.NumericArray,
	},
	Descriptor{
		Subtype: SubtypeWavelengths, Name: Wavelengths, Kind: KindWavelengths,
		GetArg: codec.Empty, GetReturn: codec.NumericArray,
	},
	Descriptor{
		Subtype: SubtypeSerialNumber, Name: SerialNumber, Kind: KindSerialNumber,
		GetArg: codec.Empty, GetReturn: codec.Text,
	},
	Descriptor{
		Subtype: SubtypeDeviceList, Name: DeviceList, Kind: KindDeviceList,
		GetArg: codec.Empty, GetReturn: codec.Text,
	},
	Descriptor{
		Subtype: SubtypeSelection, Name: Spectrometer, Kind: KindSelection,
		GetArg: codec.Empty, GetReturn: codec.Integer,
		SetArg: codec.Integer, SetReturn: codec.Integer,
	},
)

// Default returns the table shared by spectrod and spectroctl.
func Default() *Table {
	return defaultTable
}
