/*
Package s3 implements types.BlobStore on Amazon S3 or any S3-compatible store.

Listing and deletion go through the aws-sdk-go-v2 S3 client. Uploads use the
CargoShip transporter when EnableCargoShipOptimization is set and fall back
to a plain PutObject when the transporter fails. Documents are fetched from
the public read path (PublicBaseURL) over HTTP, or through GetObject when no
public path is configured.

SDK errors are translated into *errors.SyncError values. An oversized listing
surfaces as errors.ErrCodeRequestTooLarge so the caller can retry with a
smaller page; transport failures are retried with exponential backoff.

	backend, err := s3.NewBackend(ctx, &s3.Config{
		Bucket:        "memories",
		Region:        "us-east-1",
		PublicBaseURL: "https://memories.example.com",
	})
*/
package s3
