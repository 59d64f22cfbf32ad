// Copyright (c) 2025 Northbound System
package config

import "fmt"

// ConnectionString renders ObjectStorageConfig into the Azure Blob /
// Azurite connection-string format azblob.NewClientFromConnectionString
// expects, so internal/objectstorage never has to know about the
// individual account/endpoint fields.
func (c ObjectStorageConfig) ConnectionString() string {
	protocol := "http"
	if c.Secure {
		protocol = "https"
	}
	return fmt.Sprintf(
		"DefaultEndpointsProtocol=%s;AccountName=%s;AccountKey=%s;BlobEndpoint=%s;",
		protocol, c.AccountName, c.AccountKey, c.Endpoint,
	)
}
