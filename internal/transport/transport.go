// Package transport defines how the hub reaches a light: ZCL foundation
// requests, cluster commands, ZDO binds and the asynchronous report stream.
package transport

import (
	"context"
	"errors"
	"fmt"

	"zigbee-ledfx/internal/zcl"
)

// ErrClosed is returned by requests issued after Close.
var ErrClosed = errors.New("transport closed")

// Transport is the abstract interface to the mesh.
type Transport interface {
	// ZCL
	ReadAttributes(ctx context.Context, req ReadAttributesRequest) error
	WriteAttributes(ctx context.Context, req WriteAttributesRequest) error
	SendCommand(ctx context.Context, req ClusterCommandRequest) error
	ConfigureReporting(ctx context.Context, req ConfigureReportingRequest) error

	// ZDO
	Bind(ctx context.Context, req BindRequest) error

	// OnAttributeReport registers a handler for attribute reports and read
	// responses. Handlers run on the transport's delivery goroutine.
	OnAttributeReport(handler func(AttributeReportEvent))

	Close() error
}

// BindRequest is a ZDO bind request.
type BindRequest struct {
	TargetShortAddr uint16
	SrcIEEE         [8]byte
	SrcEP           uint8
	ClusterID       uint16
	DstIEEE         [8]byte
	DstEP           uint8
}

// ReadAttributesRequest specifies which attributes to read. The response is
// delivered through OnAttributeReport.
type ReadAttributesRequest struct {
	DstAddr          uint16
	DstEP            uint8
	ClusterID        uint16
	ManufacturerCode uint16
	AttrIDs          []uint16
}

// WriteAttributesRequest specifies attributes to write.
type WriteAttributesRequest struct {
	DstAddr          uint16
	DstEP            uint8
	ClusterID        uint16
	ManufacturerCode uint16
	Records          []WriteRecord
}

// WriteRecord is a single attribute write.
type WriteRecord struct {
	AttrID   uint16
	DataType uint8
	Value    []byte
}

// ClusterCommandRequest sends a cluster-specific command.
type ClusterCommandRequest struct {
	DstAddr   uint16
	DstEP     uint8
	ClusterID uint16
	CommandID uint8
	Payload   []byte
}

// ConfigureReportingRequest sets up reporting for one attribute.
type ConfigureReportingRequest struct {
	DstAddr          uint16
	DstEP            uint8
	ClusterID        uint16
	ManufacturerCode uint16
	Record           ReportingRecord
}

// ReportingRecord is one attribute reporting configuration record.
type ReportingRecord struct {
	AttrID       uint16
	DataType     uint8
	MinInterval  uint16
	MaxInterval  uint16
	ReportChange []byte // omitted on the wire for discrete types
}

// AttributeRecord is one attribute in a report or read response.
type AttributeRecord struct {
	AttrID   uint16
	Status   uint8
	DataType uint8
	Value    []byte
}

// AttributeReportEvent carries attributes received from a device, either
// unsolicited or as a read response.
type AttributeReportEvent struct {
	SrcAddr          uint16
	SrcEP            uint8
	ClusterID        uint16
	ManufacturerCode uint16
	Records          []AttributeRecord
	Response         bool
}

// StatusError reports a non-success ZCL status returned by a device.
type StatusError struct {
	Command uint8
	AttrID  uint16
	Status  uint8
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("zcl command 0x%02X attr 0x%04X: status 0x%02X (%s)",
		e.Command, e.AttrID, e.Status, zcl.StatusName(e.Status))
}
