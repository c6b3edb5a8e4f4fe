package registry

import (
	"strings"

	"usbverifier/pkg/verification"
)

// Field describes one verifiable descriptor field.
type Field struct {
	Name   string
	Format verification.Format
	// Limit is the numeric ceiling (NUMBER), digit count (HEX) or length (STRING).
	Limit int
}

// Key returns the wrapper constant suffix for the field, e.g. IMANUFACTURER_BLENGTH.
func (f Field) Key() string {
	const lengthSuffix = "bLength"
	if len(f.Name) > len(lengthSuffix) && strings.HasSuffix(f.Name, lengthSuffix) {
		return strings.ToUpper(strings.TrimSuffix(f.Name, lengthSuffix)) + "_BLENGTH"
	}
	return strings.ToUpper(f.Name)
}

// Descriptor is the static definition of a USB descriptor registry.
type Descriptor struct {
	// Type is the short identifier, e.g. "DeviceQualifier".
	Type string
	// Name is the display name, e.g. "Device Qualifier Descriptor".
	Name string
	// Prefix is the wrapper constant prefix, e.g. "DEVICE_QUALIFIER".
	Prefix  string
	Aliases []string
	Fields  []Field
	// Requires lists the descriptor types that must be verified whenever this
	// one carries values.
	Requires []string
}

// Descriptor types, in allocation walk order.
const (
	TypeDevice          = "Device"
	TypeConfiguration   = "Configuration"
	TypeInterface       = "Interface"
	TypeHID             = "HID"
	TypeEndpoint        = "Endpoint"
	TypeDeviceQualifier = "DeviceQualifier"
	TypeOtherSpeed      = "OtherSpeed"
	TypeString          = "String"
)

const (
	byteMax   = 255
	wordMax   = 65535
	stringMax = 253
)

func number(name string, limit int) Field {
	return Field{Name: name, Format: verification.FormatNumber, Limit: limit}
}

func hex(name string, digits int) Field {
	return Field{Name: name, Format: verification.FormatHex, Limit: digits}
}

func text(name string) Field {
	return Field{Name: name, Format: verification.FormatString, Limit: stringMax}
}

// Catalog returns the descriptor definitions in allocation walk order.
func Catalog() []Descriptor {
	return []Descriptor{
		{
			Type: TypeDevice, Name: "Device Descriptor", Prefix: "DEVICE",
			Aliases: []string{"dev"},
			Fields: []Field{
				number("bLength", byteMax),
				hex("bcdUsb", 4),
				hex("bDeviceClass", 2),
				hex("bDeviceSubClass", 2),
				hex("bDeviceProtocol", 2),
				number("bMaxPacketSize0", byteMax),
				hex("idVendor", 4),
				hex("idProduct", 4),
				hex("bcdDevice", 4),
				number("iManufacturerbLength", byteMax),
				text("iManufacturer"),
				number("iProductbLength", byteMax),
				text("iProduct"),
				number("iSerialNumberbLength", byteMax),
				text("iSerialNumber"),
				number("bNumConfigurations", byteMax),
			},
		},
		{
			Type: TypeConfiguration, Name: "Configuration Descriptor", Prefix: "CONFIGURATION",
			Aliases:  []string{"config", "conf"},
			Requires: []string{TypeDevice},
			Fields: []Field{
				number("bLength", byteMax),
				number("wTotalLength", wordMax),
				number("bNumInterfaces", byteMax),
				number("bConfigurationValue", byteMax),
				number("iConfigurationbLength", byteMax),
				text("iConfiguration"),
				hex("bmAttributes", 2),
				number("bMaxPower", byteMax),
			},
		},
		{
			Type: TypeInterface, Name: "Interface Descriptor", Prefix: "INTERFACE",
			Aliases:  []string{"itf"},
			Requires: []string{TypeConfiguration, TypeDevice},
			Fields: []Field{
				number("bLength", byteMax),
				number("bInterfaceNumber", byteMax),
				number("bAlternateSetting", byteMax),
				number("bNumEndpoints", byteMax),
				hex("bInterfaceClass", 2),
				hex("bInterfaceSubClass", 2),
				hex("bInterfaceProtocol", 2),
				number("iInterfacebLength", byteMax),
				text("iInterface"),
			},
		},
		{
			Type: TypeHID, Name: "HID Descriptor", Prefix: "HID",
			Requires: []string{TypeInterface, TypeConfiguration, TypeDevice},
			Fields: []Field{
				number("bLength", byteMax),
				hex("bcdHID", 4),
				hex("bCountryCode", 2),
				number("bNumDescriptors", byteMax),
				hex("bDescriptorType", 2),
				number("wDescriptorLength", wordMax),
			},
		},
		{
			Type: TypeEndpoint, Name: "Endpoint Descriptor", Prefix: "ENDPOINT",
			Aliases:  []string{"ep"},
			Requires: []string{TypeInterface, TypeConfiguration, TypeDevice},
			Fields: []Field{
				number("bLength", byteMax),
				hex("bEndpointAddress", 2),
				hex("bmAttributes", 2),
				number("wMaxPacketSize", wordMax),
				number("bInterval", byteMax),
			},
		},
		{
			Type: TypeDeviceQualifier, Name: "Device Qualifier Descriptor", Prefix: "DEVICE_QUALIFIER",
			Aliases: []string{"device_qualifier", "qualifier"},
			Fields: []Field{
				number("bLength", byteMax),
				hex("bcdUsb", 4),
				hex("bDeviceClass", 2),
				hex("bDeviceSubClass", 2),
				hex("bDeviceProtocol", 2),
				number("bMaxPacketSize0", byteMax),
				number("bNumConfigurations", byteMax),
				number("bReserved", byteMax),
			},
		},
		{
			Type: TypeOtherSpeed, Name: "Other Speed Descriptor", Prefix: "OTHER_SPEED",
			Aliases: []string{"other_speed"},
			Fields: []Field{
				number("bLength", byteMax),
				number("wTotalLength", wordMax),
				number("bNumInterfaces", byteMax),
				number("bConfigurationValue", byteMax),
				hex("bmAttributes", 2),
				number("bMaxPower", byteMax),
			},
		},
		{
			Type: TypeString, Name: "String Descriptor", Prefix: "STRING",
			Aliases:  []string{"str"},
			Requires: []string{TypeInterface, TypeConfiguration, TypeDevice},
			Fields: []Field{
				number("bLength", byteMax),
				text("iManufacturer"),
				text("iProduct"),
				text("iSerialNumber"),
				text("iConfiguration"),
				text("iInterface"),
			},
		},
	}
}

func (d Descriptor) matches(name string) bool {
	name = strings.TrimSpace(name)
	if strings.EqualFold(name, d.Type) || strings.EqualFold(name, d.Name) {
		return true
	}
	for _, alias := range d.Aliases {
		if strings.EqualFold(name, alias) {
			return true
		}
	}
	return false
}
